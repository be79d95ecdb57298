package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/warroom/internal/models"
)

var (
	eventType    string
	eventLevel   string
	eventSource  string
	eventLimit   int
	importTarget string
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Telemetry event commands",
}

var eventSendCmd = &cobra.Command{
	Use:     "send <incident-id> <message>",
	Short:   "Attach one event to an incident",
	Example: `  warroomctl event send 3f2c... "disk 95% full" --type alert --level error --source node-exporter`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ev, err := c.IngestEvent(cmd.Context(), models.EventCreate{
			IncidentID: args[0],
			EventType:  models.EventType(eventType),
			Message:    args[1],
			Level:      eventLevel,
			Source:     eventSource,
		})
		if err != nil {
			return fmt.Errorf("ingest event: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), ev)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Event %s attached to %s\n", ev.ID, ev.IncidentID)
		return nil
	},
}

var eventImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Attach a batch of events from a file",
	Long: `Attach a batch of events read from a file, or stdin when the file is "-".

The input is either a JSON array of events or one JSON event per line.
With --incident every event is attached to that incident. Events for
incidents the server does not know are skipped and counted.`,
	Example: `  warroomctl event import events.json
  tail -n 200 app.ndjson | warroomctl event import - --incident 3f2c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open events: %w", err)
			}
			defer f.Close()
			r = f
		}
		batch, err := readEvents(r)
		if err != nil {
			return err
		}
		if importTarget != "" {
			for i := range batch {
				batch[i].IncidentID = importTarget
			}
		}
		printVerbose("read %d event(s)", len(batch))

		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.IngestBatch(cmd.Context(), batch)
		if err != nil {
			return fmt.Errorf("ingest batch: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Accepted: %d | Skipped: %d\n", res.Accepted, res.Skipped)
		return nil
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list <incident-id>",
	Short: "List an incident's events, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		events, err := c.Events(cmd.Context(), args[0], eventLimit)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		return printEvents(cmd.OutOrStdout(), events)
	},
}

// readEvents accepts a JSON array or newline-delimited JSON objects.
func readEvents(r io.Reader) ([]models.EventCreate, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no events in input")
	}

	if data[0] == '[' {
		var batch []models.EventCreate
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("parse events: %w", err)
		}
		return batch, nil
	}

	var batch []models.EventCreate
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var ev models.EventCreate
		if err := json.Unmarshal(text, &ev); err != nil {
			return nil, fmt.Errorf("parse events: line %d: %w", line, err)
		}
		batch = append(batch, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return batch, nil
}

func init() {
	eventSendCmd.Flags().StringVar(&eventType, "type", string(models.EventTypeLog), "log, metric, alert, trace or user_action")
	eventSendCmd.Flags().StringVar(&eventLevel, "level", "", "event level (default info)")
	eventSendCmd.Flags().StringVar(&eventSource, "source", "cli", "event source")

	eventImportCmd.Flags().StringVar(&importTarget, "incident", "", "attach every event to this incident")

	eventListCmd.Flags().IntVar(&eventLimit, "limit", 0, "maximum events to return")

	eventCmd.AddCommand(eventSendCmd, eventImportCmd, eventListCmd)
	rootCmd.AddCommand(eventCmd)
}
