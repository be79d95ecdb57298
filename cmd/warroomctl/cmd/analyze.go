package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/warroom/internal/scheduler"
)

var (
	analyzeWait     bool
	analyzeInterval time.Duration
	analyzeMaxWait  time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <incident-id>",
	Short: "Run incident analysis",
	Long: `Start a background analysis of an incident.

The analysis writes a summary, root cause and suggested actions onto the
incident. With --wait the command polls the job until it finishes and then
prints the suggested actions.`,
	Example: `  warroomctl analyze 3f2c... --wait`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		job, err := c.Analyze(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("start analysis: %w", err)
		}
		if !analyzeWait {
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analysis job %s is %s\n", job.ID, job.State)
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), analyzeMaxWait)
		defer cancel()
		printVerbose("waiting for job %s", job.ID)
		job, err = c.WaitJob(ctx, job.ID, analyzeInterval)
		if err != nil {
			return fmt.Errorf("wait for analysis: %w", err)
		}
		if job.State == scheduler.StateFailed {
			return fmt.Errorf("analysis failed: %s", job.Error)
		}

		inc, err := c.GetIncident(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get incident: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), inc)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Summary:     %s\n", inc.AISummary)
		fmt.Fprintf(cmd.OutOrStdout(), "Root cause:  %s\n", inc.RootCause)
		if len(inc.SuggestedActions) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Suggested actions:")
			for i, a := range inc.SuggestedActions {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, a)
			}
		}
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show a background job's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		job, err := c.Job(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), job)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job:       %s\n", job.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Incident:  %s\n", job.IncidentID)
		fmt.Fprintf(cmd.OutOrStdout(), "State:     %s\n", job.State)
		if job.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Error:     %s\n", job.Error)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVarP(&analyzeWait, "wait", "w", false, "wait for the analysis to finish")
	analyzeCmd.Flags().DurationVar(&analyzeInterval, "interval", 500*time.Millisecond, "poll interval with --wait")
	analyzeCmd.Flags().DurationVar(&analyzeMaxWait, "max-wait", 2*time.Minute, "give up waiting after this long")

	rootCmd.AddCommand(analyzeCmd, jobCmd)
}
