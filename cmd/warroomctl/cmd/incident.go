package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/warroom/internal/client"
	"github.com/good-yellow-bee/warroom/internal/models"
)

var (
	incidentTitle       string
	incidentSeverity    string
	incidentSource      string
	incidentDescription string
	incidentTags        []string

	listStatus   string
	listSeverity string
	listLimit    int

	updateFields []string

	postmortemFormat string
	postmortemOut    string
)

// incidentCmd represents the incident command group
var incidentCmd = &cobra.Command{
	Use:     "incident",
	Aliases: []string{"inc"},
	Short:   "Incident management commands",
}

var incidentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidents, newest first",
	Example: `  warroomctl incident list --status open
  warroomctl incident list --severity critical --limit 10 -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		incidents, err := c.ListIncidents(cmd.Context(), client.ListOptions{
			Status:   models.Status(listStatus),
			Severity: models.Severity(listSeverity),
			Limit:    listLimit,
		})
		if err != nil {
			return fmt.Errorf("list incidents: %w", err)
		}
		return printIncidents(cmd.OutOrStdout(), incidents)
	},
}

var incidentCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Open a new incident",
	Example: `  warroomctl incident create --title "Checkout 5xx" --severity critical --tag payments`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(incidentTitle) == "" {
			return fmt.Errorf("--title is required")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		inc, err := c.CreateIncident(cmd.Context(), models.IncidentCreate{
			Title:       incidentTitle,
			Description: incidentDescription,
			Severity:    models.Severity(incidentSeverity),
			Source:      incidentSource,
			Tags:        incidentTags,
		})
		if err != nil {
			return fmt.Errorf("create incident: %w", err)
		}
		if !jsonOutput() {
			fmt.Fprintln(cmd.OutOrStdout(), "Incident created:")
		}
		return printIncident(cmd.OutOrStdout(), inc)
	},
}

var incidentShowCmd = &cobra.Command{
	Use:   "show <incident-id>",
	Short: "Show incident details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		inc, err := c.GetIncident(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get incident: %w", err)
		}
		return printIncident(cmd.OutOrStdout(), inc)
	},
}

var incidentUpdateCmd = &cobra.Command{
	Use:   "update <incident-id>",
	Short: "Update incident fields",
	Long: `Update incident fields with key=value pairs.

Values that parse as JSON are sent as JSON, anything else as a string.
Keys the server does not recognise are reported and left alone.`,
	Example: `  warroomctl incident update 3f2c... --set severity=high --set 'tags=["db","prod"]'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(updateFields)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		inc, ignored, err := c.UpdateIncident(cmd.Context(), args[0], fields)
		if err != nil {
			return fmt.Errorf("update incident: %w", err)
		}
		printIgnored(cmd.ErrOrStderr(), ignored)
		return printIncident(cmd.OutOrStdout(), inc)
	},
}

var incidentStatusCmd = &cobra.Command{
	Use:       "status <incident-id> <status>",
	Short:     "Move an incident to a new status",
	Example:   `  warroomctl incident status 3f2c... resolved`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"open", "investigating", "identified", "monitoring", "resolved", "closed"},
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := models.ParseStatus(args[1])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		inc, err := c.UpdateStatus(cmd.Context(), args[0], status)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), inc)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Incident %s is now %s\n", inc.ID, inc.Status)
		if inc.MTTRMinutes != nil && inc.Status == models.StatusResolved {
			fmt.Fprintf(cmd.OutOrStdout(), "Time to resolve: %.1f min\n", *inc.MTTRMinutes)
		}
		return nil
	},
}

var incidentCommentCmd = &cobra.Command{
	Use:   "comment <incident-id> <text>...",
	Short: "Add a comment to the incident timeline",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entry, err := c.AddComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("add comment: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment added by %s\n", entry.Actor)
		return nil
	},
}

var incidentTimelineCmd = &cobra.Command{
	Use:   "timeline <incident-id>",
	Short: "Show the incident timeline, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.Timeline(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("timeline: %w", err)
		}
		return printTimeline(cmd.OutOrStdout(), entries)
	},
}

var incidentPostmortemCmd = &cobra.Command{
	Use:   "postmortem <incident-id>",
	Short: "Render the incident postmortem",
	Example: `  warroomctl incident postmortem 3f2c...
  warroomctl incident postmortem 3f2c... --format html --out postmortem.html`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		doc, err := c.Postmortem(cmd.Context(), args[0], postmortemFormat)
		if err != nil {
			return fmt.Errorf("postmortem: %w", err)
		}
		if postmortemOut == "" {
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		}
		if err := os.WriteFile(postmortemOut, []byte(doc), 0o644); err != nil {
			return fmt.Errorf("write postmortem: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Postmortem written to %s\n", postmortemOut)
		return nil
	},
}

// parseAssignments turns key=value pairs into a field map.
func parseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one --set key=value is required")
	}
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[key] = v
	}
	return fields, nil
}

func init() {
	incidentListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	incidentListCmd.Flags().StringVar(&listSeverity, "severity", "", "filter by severity")
	incidentListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum incidents to return")

	incidentCreateCmd.Flags().StringVarP(&incidentTitle, "title", "t", "", "incident title (required)")
	incidentCreateCmd.Flags().StringVar(&incidentSeverity, "severity", "", "critical, high, medium, low or info (default medium)")
	incidentCreateCmd.Flags().StringVar(&incidentSource, "source", "cli", "where the incident came from")
	incidentCreateCmd.Flags().StringVarP(&incidentDescription, "description", "d", "", "incident description")
	incidentCreateCmd.Flags().StringSliceVar(&incidentTags, "tag", nil, "tag, repeatable")

	incidentUpdateCmd.Flags().StringArrayVar(&updateFields, "set", nil, "field assignment key=value, repeatable")

	incidentPostmortemCmd.Flags().StringVar(&postmortemFormat, "format", "markdown", "markdown or html")
	incidentPostmortemCmd.Flags().StringVar(&postmortemOut, "out", "", "write to file instead of stdout")

	incidentCmd.AddCommand(
		incidentListCmd,
		incidentCreateCmd,
		incidentShowCmd,
		incidentUpdateCmd,
		incidentStatusCmd,
		incidentCommentCmd,
		incidentTimelineCmd,
		incidentPostmortemCmd,
	)
	rootCmd.AddCommand(incidentCmd)
}
