package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calder/mailindex/internal/maildir"
)

var listAccountsJSON bool

var listAccountsCmd = &cobra.Command{
	Use:   "list-accounts",
	Short: "List Apple Mail accounts",
	Long: `List the account directories in the Apple Mail data directory,
with display names and addresses from Accounts.plist where available.

Examples:
  mailindex list-accounts
  mailindex list-accounts --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts, err := maildir.ListAccounts(cfg.Layout())
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		if len(accounts) == 0 {
			fmt.Printf("No accounts found under %s\n", cfg.Layout().VersionDir())
			return nil
		}

		if listAccountsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(accounts)
		}
		outputAccountsTable(accounts)
		return nil
	},
}

func outputAccountsTable(accounts []maildir.Account) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDISPLAY NAME\tADDRESSES")
	fmt.Fprintln(w, "──\t────────────\t─────────")

	for _, acc := range accounts {
		name := acc.DisplayName
		if name == "" {
			name = "-"
		}
		addrs := strings.Join(acc.Addresses, ", ")
		if addrs == "" {
			addrs = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", acc.ID, name, addrs)
	}

	w.Flush()
	fmt.Printf("\n%d account(s)\n", len(accounts))
}

func init() {
	rootCmd.AddCommand(listAccountsCmd)
	listAccountsCmd.Flags().BoolVar(&listAccountsJSON, "json", false, "Output as JSON")
}
