package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pixeldraw/pixelhub/internal/cli/config"
	"github.com/pixeldraw/pixelhub/internal/cli/output"
	"github.com/pixeldraw/pixelhub/pkg/client"
)

var (
	cfgFile    string
	serverURL  string
	jsonOutput bool
	cfg        *config.Config
	out        *output.Output
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pixelhub",
	Short: "CLI for the pixelhub collaboration hub",
	Long:  `pixelhub is a command-line tool for watching and talking to a pixelhub drawing hub.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		out = output.New(jsonOutput)

		// Load config (ignore errors for commands that don't need it)
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			cfg = &config.Config{}
		}

		// Server URL priority: flag > config > default
		if serverURL == "" && cfg.Server != "" {
			serverURL = cfg.Server
		}
		if serverURL == "" {
			serverURL = client.DefaultServer
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.pixelhub/config.json)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

// getClient creates a client with current config.
func getClient(opts ...client.Option) *client.Client {
	return client.New(append([]client.Option{client.WithServer(serverURL)}, opts...)...)
}

// username resolves the display name: flag > config.
func username(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Username
}
