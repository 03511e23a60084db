package cmd

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeldraw/pixelhub/pkg/client"
)

var (
	sayUsername string
	sayTimeout  time.Duration
)

var sayCmd = &cobra.Command{
	Use:   "say <roomId> <message...>",
	Short: "Send a chat message to a room",
	Long: `Join a room, send one chat message and wait for the hub to echo it back.

Examples:
  pixelhub say abc123 "hello everyone"
  pixelhub say abc123 brb --username ana`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		roomID := args[0]
		text := strings.Join(args[1:], " ")

		ctx, cancel := context.WithTimeout(context.Background(), sayTimeout)
		defer cancel()

		session, err := getClient(client.WithReconnect(false)).Dial(ctx)
		if err != nil {
			out.Error("Failed to connect: %v", err)
			os.Exit(1)
		}
		defer session.Close()

		if name := username(sayUsername); name != "" {
			if err := session.SetUsername(name); err != nil {
				out.Error("Failed to set username: %v", err)
				os.Exit(1)
			}
		}
		if err := session.JoinRoom(roomID); err != nil {
			out.Error("Failed to join %s: %v", roomID, err)
			os.Exit(1)
		}

		// Frames are handled in order, so the ack means the join landed.
		if _, err := waitFor(ctx, session, client.EventJoinedRoom); err != nil {
			out.Error("Join not acknowledged: %v", err)
			os.Exit(1)
		}

		if err := session.SendMessage(text); err != nil {
			out.Error("Failed to send: %v", err)
			os.Exit(1)
		}

		ev, err := waitFor(ctx, session, client.EventReceiveMessage)
		if err != nil {
			out.Error("Message not delivered: %v", err)
			os.Exit(1)
		}

		var msg client.ReceiveMessage
		ev.Decode(&msg)

		if jsonOutput {
			out.JSON(map[string]any{
				"id":      session.ID(),
				"roomId":  roomID,
				"message": msg.Message,
			})
			return
		}
		out.Success("Sent to %s", roomID)
		out.KeyValue("Message", msg.Message)
	},
}

// waitFor reads events until one named name arrives. Hub error replies and
// connection failures end the wait.
func waitFor(ctx context.Context, session *client.Session, name string) (*client.Event, error) {
	for {
		select {
		case ev := <-session.Events():
			if ev.Name == name {
				return ev, nil
			}
		case err := <-session.Errors():
			var reconnected *client.ReconnectedError
			if errors.As(err, &reconnected) {
				continue
			}
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func init() {
	sayCmd.Flags().StringVar(&sayUsername, "username", "", "display name (defaults to config username)")
	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", 10*time.Second, "give up after duration")
	rootCmd.AddCommand(sayCmd)
}
