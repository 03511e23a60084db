package cmd

import (
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Long:  `Check the liveness and readiness of the pixelhub server.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := getClient()

		health, err := c.Health()
		if err != nil {
			if jsonOutput {
				out.JSON(map[string]any{
					"status": "error",
					"error":  err.Error(),
				})
			} else {
				out.Error("Server unreachable: %v", err)
			}
			return
		}

		readyErr := c.Ready()

		if jsonOutput {
			out.JSON(map[string]any{
				"status": health.Status,
				"ready":  readyErr == nil,
			})
			return
		}

		out.Success("Server is healthy")
		out.KeyValue("Status", health.Status)
		if readyErr != nil {
			out.Warn("Server not ready: %v", readyErr)
		} else {
			out.KeyValue("Ready", "yes")
		}
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
