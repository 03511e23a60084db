package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixeldraw/pixelhub/internal/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath()

		if jsonOutput {
			out.JSON(map[string]any{
				"path":     path,
				"server":   serverURL,
				"username": cfg.Username,
			})
			return
		}

		out.Header("Configuration")
		out.KeyValue("Path", path)
		out.KeyValue("Server", serverURL)
		out.KeyValue("Username", orNotSet(cfg.Username))
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <server|username> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		switch key {
		case "server":
			cfg.Server = value
		case "username":
			cfg.Username = value
		default:
			return fmt.Errorf("unknown key %q (want server or username)", key)
		}

		if err := config.Save(cfg, cfgFile); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		out.Success("Saved %s to %s", key, configPath())
		return nil
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
