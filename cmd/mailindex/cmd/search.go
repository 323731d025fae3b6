package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calder/mailindex/internal/query"
)

var (
	searchAccount string
	searchAfter   string
	searchBefore  string
	searchRecent  bool
	searchLimit   int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search messages by subject or sender",
	Long: `Search Envelope Index metadata by subject and sender text, with
optional account and date filters. Use --recent to list the latest
messages without a text filter.

Examples:
  mailindex search "quarterly report"
  mailindex search deadline --after 2024-03-01 --limit 5
  mailindex search --recent`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := query.Search{
			Account: searchAccount,
			Recent:  searchRecent,
			Limit:   searchLimit,
		}
		if len(args) == 1 {
			s.Text = args[0]
		}

		var err error
		if s.After, err = parseDayFlag("after", searchAfter); err != nil {
			return err
		}
		if s.Before, err = parseDayFlag("before", searchBefore); err != nil {
			return err
		}

		ctx := cmd.Context()
		conn, exec, err := acquireStore(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		rs, err := exec.Search(ctx, conn, s)
		if err != nil {
			return err
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rs)
		}
		outputResultTable(rs)
		return nil
	},
}

func outputResultTable(rs *query.ResultSet) {
	if len(rs.Records) == 0 {
		if rs.Note != "" {
			fmt.Println(rs.Note)
		} else {
			fmt.Println("No messages found.")
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSENDER\tSUBJECT")
	for _, rec := range rs.Records {
		date := rec.DateSent
		if i := strings.IndexByte(date, 'T'); i > 0 {
			date = date[:i]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", date, rec.Sender, rec.Subject)
	}
	w.Flush()

	if rs.Truncated {
		fmt.Printf("\n%d message(s), more available (raise --limit)\n", len(rs.Records))
	} else {
		fmt.Printf("\n%d message(s)\n", len(rs.Records))
	}
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchAccount, "account", "", "Restrict to an account UUID")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "Only messages sent on or after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "Only messages sent on or before this date (YYYY-MM-DD)")
	searchCmd.Flags().BoolVar(&searchRecent, "recent", false, "List the most recent messages")
	searchCmd.Flags().IntVar(&searchLimit, "limit", query.DefaultLimit, "Maximum results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
}
