package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [table]",
	Short: "Inspect the Envelope Index schema",
	Long: `Show the tables in the Envelope Index with their columns and row
counts. With a table argument, show only that table.

Examples:
  mailindex inspect
  mailindex inspect messages`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, _, err := acquireStore(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		tables := args
		if len(tables) == 0 {
			tables, err = conn.ListTables(ctx)
			if err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tROWS\tCOLUMNS")
		for _, table := range tables {
			cols, err := conn.DescribeTable(ctx, table)
			if err != nil {
				return err
			}
			count, err := conn.CountRows(ctx, table)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t", table, count)
			for i, c := range cols {
				if i > 0 {
					fmt.Fprint(w, ", ")
				}
				fmt.Fprintf(w, "%s %s", c.Name, c.Type)
			}
			fmt.Fprintln(w)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
