package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/calder/mailindex/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets any MCP client query Apple Mail metadata using tools like
mail_search, mail_find_sent_emails, mail_search_by_subject,
mail_list_accounts, mail_examine_database, and mail_search_all_tables.

Add to your MCP client config:
  {
    "mcpServers": {
      "mailindex": {
        "command": "mailindex",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("serving MCP over stdio",
			"store", cfg.StorePath(),
			"version", cfg.Mail.Version,
		)
		return mcpserver.Serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
