package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

func jsonOutput() bool {
	return output == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printIncidents(w io.Writer, incidents []*models.Incident) error {
	if jsonOutput() {
		return printJSON(w, incidents)
	}
	if len(incidents) == 0 {
		fmt.Fprintln(w, "No incidents found.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSEVERITY\tSTATUS\tTITLE\tCREATED")
	for _, inc := range incidents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			inc.ID, inc.Severity, inc.Status, truncate(inc.Title, 48), formatTime(inc.CreatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal: %d incident(s)\n", len(incidents))
	return nil
}

func printIncident(w io.Writer, inc *models.Incident) error {
	if jsonOutput() {
		return printJSON(w, inc)
	}
	fmt.Fprintf(w, "ID:          %s\n", inc.ID)
	fmt.Fprintf(w, "Title:       %s\n", inc.Title)
	fmt.Fprintf(w, "Severity:    %s\n", inc.Severity)
	fmt.Fprintf(w, "Status:      %s\n", inc.Status)
	fmt.Fprintf(w, "Source:      %s\n", inc.Source)
	fmt.Fprintf(w, "Created:     %s\n", formatTime(inc.CreatedAt))
	if inc.ResolvedAt != nil {
		fmt.Fprintf(w, "Resolved:    %s\n", formatTime(*inc.ResolvedAt))
	}
	if inc.MTTRMinutes != nil {
		fmt.Fprintf(w, "MTTR:        %.1f min\n", *inc.MTTRMinutes)
	}
	if len(inc.Tags) > 0 {
		fmt.Fprintf(w, "Tags:        %s\n", strings.Join(inc.Tags, ", "))
	}
	if inc.Description != "" {
		fmt.Fprintf(w, "\n%s\n", inc.Description)
	}
	if inc.AISummary != "" {
		fmt.Fprintf(w, "\nSummary:     %s\n", inc.AISummary)
	}
	if inc.RootCause != "" {
		fmt.Fprintf(w, "Root cause:  %s\n", inc.RootCause)
	}
	return nil
}

func printTimeline(w io.Writer, entries []*models.TimelineEntry) error {
	if jsonOutput() {
		return printJSON(w, entries)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tTYPE\tACTOR\tTITLE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatTime(e.Timestamp), e.EntryType, e.Actor, e.Title)
	}
	return tw.Flush()
}

func printEvents(w io.Writer, events []*models.Event) error {
	if jsonOutput() {
		return printJSON(w, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tTYPE\tLEVEL\tSOURCE\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(e.Timestamp), e.EventType, strings.ToUpper(e.Level), e.Source, truncate(e.Message, 80))
	}
	return tw.Flush()
}

func printActions(w io.Writer, actions []*models.Action) error {
	if jsonOutput() {
		return printJSON(w, actions)
	}
	if len(actions) == 0 {
		fmt.Fprintln(w, "No actions found.")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tPRIORITY\tSTATUS\tBY\tTITLE")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", a.ID, a.Priority, a.Status, a.SuggestedBy, truncate(a.Title, 60))
	}
	return tw.Flush()
}

func printIgnored(w io.Writer, ignored []string) {
	if len(ignored) > 0 && !jsonOutput() {
		fmt.Fprintf(w, "Ignored fields: %s\n", strings.Join(ignored, ", "))
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-2] + ".."
}
