package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/warroom/internal/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch <incident-id>",
	Short: "Follow an incident room live",
	Long: `Join an incident's live room and print every update until interrupted.

With -o json each update is printed as one JSON object per line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		return c.Watch(cmd.Context(), args[0], func(env models.Envelope) error {
			if jsonOutput() {
				return json.NewEncoder(w).Encode(env)
			}
			return printEnvelope(w, env)
		})
	},
}

// printEnvelope writes one human-readable line per update.
func printEnvelope(w io.Writer, env models.Envelope) error {
	ts := env.Timestamp.Local().Format("15:04:05")
	var line string
	switch env.Type {
	case models.UpdateConnection:
		line = fmt.Sprint(env.Data["message"])
	case models.UpdateStatusChanged:
		line = fmt.Sprintf("status %v → %v by %v", env.Data["old_status"], env.Data["new_status"], env.Data["actor"])
	case models.UpdateUserMessage:
		line = fmt.Sprintf("<%v> %v", env.Data["user"], env.Data["message"])
	case models.UpdateEventIngested:
		ev, _ := env.Data["event"].(map[string]any)
		line = fmt.Sprintf("[%v] %v", ev["level"], ev["message"])
	case models.UpdateCommentAdded:
		entry, _ := env.Data["entry"].(map[string]any)
		line = fmt.Sprintf("%v: %v", entry["actor"], entry["description"])
	case models.UpdateActionCreated, models.UpdateActionUpdated:
		a, _ := env.Data["action"].(map[string]any)
		line = fmt.Sprintf("%v (%v)", a["title"], a["status"])
	default:
		data, err := json.Marshal(env.Data)
		if err != nil {
			return err
		}
		line = string(data)
	}
	_, err := fmt.Fprintf(w, "%s  %-18s %s\n", ts, env.Type, line)
	return err
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
