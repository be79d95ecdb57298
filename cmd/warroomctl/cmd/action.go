package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/warroom/internal/models"
)

var (
	actionTitle       string
	actionDescription string
	actionPriority    int
	actionFields      []string
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Remediation action commands",
}

var actionListCmd = &cobra.Command{
	Use:   "list <incident-id>",
	Short: "List an incident's actions, highest priority first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		actions, err := c.Actions(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("list actions: %w", err)
		}
		return printActions(cmd.OutOrStdout(), actions)
	},
}

var actionAddCmd = &cobra.Command{
	Use:     "add <incident-id>",
	Short:   "Add an action to an incident",
	Example: `  warroomctl action add 3f2c... --title "Fail over to replica" --priority 5`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(actionTitle) == "" {
			return fmt.Errorf("--title is required")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		a, err := c.CreateAction(cmd.Context(), args[0], models.ActionCreate{
			Title:       actionTitle,
			Description: actionDescription,
			Priority:    actionPriority,
		})
		if err != nil {
			return fmt.Errorf("create action: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), a)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Action %s added (priority %d)\n", a.ID, a.Priority)
		return nil
	},
}

var actionUpdateCmd = &cobra.Command{
	Use:     "update <action-id>",
	Short:   "Update action fields",
	Example: `  warroomctl action update 9a1b... --set status=completed --set result="replica promoted"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(actionFields)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		a, ignored, err := c.UpdateAction(cmd.Context(), args[0], fields)
		if err != nil {
			return fmt.Errorf("update action: %w", err)
		}
		printIgnored(cmd.ErrOrStderr(), ignored)
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), a)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Action %s is %s\n", a.ID, a.Status)
		return nil
	},
}

func init() {
	actionAddCmd.Flags().StringVarP(&actionTitle, "title", "t", "", "action title (required)")
	actionAddCmd.Flags().StringVarP(&actionDescription, "description", "d", "", "action description")
	actionAddCmd.Flags().IntVarP(&actionPriority, "priority", "p", 0, "priority 1-5 (default 1)")

	actionUpdateCmd.Flags().StringArrayVar(&actionFields, "set", nil, "field assignment key=value, repeatable")

	actionCmd.AddCommand(actionListCmd, actionAddCmd, actionUpdateCmd)
	rootCmd.AddCommand(actionCmd)
}
