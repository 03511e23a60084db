package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/pixeldraw/pixelhub/internal/cli/display"
	"github.com/pixeldraw/pixelhub/pkg/client"
)

var (
	watchFilter   string
	watchCount    int
	watchTimeout  time.Duration
	watchUsername string
	watchNoColor  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <roomId>",
	Short: "Watch a room",
	Long: `Join a room and print every event broadcast in it.

Examples:
  pixelhub watch abc123
  pixelhub watch abc123 --filter '.event == "receive_message"'
  pixelhub watch abc123 --filter '.data.val == null' --count 5 --timeout 30s
  pixelhub watch abc123 --json | jq .data`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		roomID := args[0]

		var jqCode *gojq.Code
		if watchFilter != "" {
			code, err := compileJqFilter(watchFilter)
			if err != nil {
				out.Error("Invalid jq filter: %v", err)
				os.Exit(1)
			}
			jqCode = code
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if watchTimeout > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), watchTimeout)
			defer cancel()
		}

		session, err := getClient().Dial(ctx)
		if err != nil {
			out.Error("Failed to connect: %v", err)
			os.Exit(1)
		}
		defer session.Close()

		if name := username(watchUsername); name != "" {
			if err := session.SetUsername(name); err != nil {
				out.Error("Failed to set username: %v", err)
				os.Exit(1)
			}
		}
		if err := session.JoinRoom(roomID); err != nil {
			out.Error("Failed to join %s: %v", roomID, err)
			os.Exit(1)
		}

		colorEnabled := !watchNoColor && display.ColorEnabled()
		renderer := display.NewRenderer(display.NewColorizer(colorEnabled))
		renderer.Remember(session.ID(), session.Color())

		if !jsonOutput {
			out.Success("Connected as %s", session.ID())
			out.KeyValue("Room", roomID)
			out.KeyValue("Color", session.Color())
			if watchFilter != "" {
				out.KeyValue("Filter", watchFilter)
			}
			if watchCount > 0 {
				out.KeyValue("Exit after", fmt.Sprintf("%d events", watchCount))
			}
			out.Info("Waiting for events... (Ctrl+C to exit)")
			out.Divider()
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		matchCount := 0

		for {
			select {
			case ev := <-session.Events():
				if !matchesJqFilter(jqCode, ev.Name, ev.Data) {
					continue
				}

				if jsonOutput {
					out.Stream(renderer.JSONLine(ev))
				} else {
					line, err := renderer.Render(ev)
					if err != nil {
						line = ev.Name + " " + string(ev.Data)
					}
					fmt.Println(line)
				}
				matchCount++

				if watchCount > 0 && matchCount >= watchCount {
					return
				}

			case err := <-session.Errors():
				var reconnected *client.ReconnectedError
				var serverErr *client.ServerError
				switch {
				case errors.As(err, &reconnected):
					renderer.Remember(session.ID(), session.Color())
					out.Success("Reconnected as %s", reconnected.ID)
				case errors.As(err, &serverErr):
					out.Warn("Rejected by hub: %v", serverErr)
				default:
					out.Warn("Connection error: %v (reconnecting...)", err)
				}

			case <-sigCh:
				if !jsonOutput {
					out.Info("Disconnecting...")
				}
				return

			case <-ctx.Done():
				if watchTimeout > 0 && matchCount == 0 {
					out.Error("Timeout waiting for events")
					os.Exit(1)
				}
				return
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchFilter, "filter", "", "jq expression over {event, data}")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "exit after N matching events")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "exit after duration")
	watchCmd.Flags().StringVar(&watchUsername, "username", "", "display name (defaults to config username)")
	watchCmd.Flags().BoolVar(&watchNoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(watchCmd)
}
