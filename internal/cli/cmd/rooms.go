package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms [roomId]",
	Short: "List active rooms or show one room's members",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := getClient()

		if len(args) == 1 {
			detail, err := c.Room(args[0])
			if err != nil {
				out.Error("Failed to get room: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				out.JSON(detail)
				return
			}

			out.Header(fmt.Sprintf("Room %s", detail.RoomID))
			rows := make([][]string, 0, len(detail.Members))
			for _, m := range detail.Members {
				rows = append(rows, []string{m.ID, m.Color, m.Username})
			}
			out.Table([]string{"ID", "COLOR", "USERNAME"}, rows)
			return
		}

		list, err := c.Rooms()
		if err != nil {
			out.Error("Failed to list rooms: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			out.JSON(list)
			return
		}

		if len(list.Rooms) == 0 {
			out.Info("No active rooms (%d connections)", list.Connections)
			return
		}
		rows := make([][]string, 0, len(list.Rooms))
		for _, r := range list.Rooms {
			rows = append(rows, []string{r.RoomID, strconv.Itoa(r.Members)})
		}
		out.Table([]string{"ROOM", "MEMBERS"}, rows)
		out.Divider()
		out.KeyValue("Connections", strconv.Itoa(list.Connections))
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
