package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is ready",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		h, checkErr := c.Health(cmd.Context())
		if h == nil {
			return checkErr
		}
		if jsonOutput() {
			if err := printJSON(cmd.OutOrStdout(), h); err != nil {
				return err
			}
			return checkErr
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", h.Status)
		names := make([]string, 0, len(h.Checks))
		for name := range h.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := newTable(cmd.OutOrStdout())
		for _, name := range names {
			fmt.Fprintf(tw, "  %s\t%s\n", name, h.Checks[name])
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		return checkErr
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
