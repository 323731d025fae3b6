package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/calder/mailindex/internal/config"
	"github.com/calder/mailindex/internal/maildir"
	"github.com/calder/mailindex/internal/query"
	"github.com/calder/mailindex/internal/schema"
	"github.com/calder/mailindex/internal/store"
)

// Tool name constants. Kept compatible with the apple-mail-mcp server so
// existing client configurations continue to work.
const (
	ToolSearch          = "mail_search"
	ToolListAccounts    = "mail_list_accounts"
	ToolExamineDatabase = "mail_examine_database"
	ToolSearchAllTables = "mail_search_all_tables"
	ToolFindSentEmails  = "mail_find_sent_emails"
	ToolSearchBySubject = "mail_search_by_subject"
)

// Common argument helpers for recurring tool option definitions.

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withDate(desc string) mcp.ToolOption {
	return mcp.WithString("date_filter",
		mcp.Description(desc+" (YYYY-MM-DD)"),
	)
}

// Serve creates an MCP server exposing the Envelope Index tools and serves
// over stdio. It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	cat, err := schema.ForVersion(cfg.Mail.Version)
	if err != nil {
		return fmt.Errorf("mcp serve: %w", err)
	}

	h := newHandlers(
		store.NewProvider(cfg.StorePath()),
		query.NewExecutor(cat, cfg.ResultLimit),
		cfg.Layout(),
		cfg.Mail.PrimaryEmail,
	)

	s := server.NewMCPServer(
		"mailindex",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(searchTool(), h.search)
	s.AddTool(listAccountsTool(), h.listAccounts)
	s.AddTool(examineDatabaseTool(), h.examineDatabase)
	s.AddTool(searchAllTablesTool(), h.searchAllTables)
	s.AddTool(findSentEmailsTool(), h.findSentEmails)
	s.AddTool(searchBySubjectTool(), h.searchBySubject)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func newHandlers(provider *store.Provider, exec *query.Executor, layout maildir.Layout, primaryEmail string) *handlers {
	return &handlers{
		provider:     provider,
		exec:         exec,
		layout:       layout,
		primaryEmail: primaryEmail,
	}
}

func searchTool() mcp.Tool {
	return mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search emails by subject or sender text, account, and date range. Pass recent=true to list the latest messages without a filter."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Description("Substring matched against subject and sender address"),
		),
		mcp.WithString("account",
			mcp.Description("Account UUID; restricts results to that account's mailboxes"),
		),
		mcp.WithString("after",
			mcp.Description("Only messages sent on or after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("before",
			mcp.Description("Only messages sent on or before this date (YYYY-MM-DD)"),
		),
		mcp.WithBoolean("recent",
			mcp.Description("List the most recent messages when no other filter is given"),
		),
		withLimit("10"),
	)
}

func listAccountsTool() mcp.Tool {
	return mcp.NewTool(ToolListAccounts,
		mcp.WithDescription("List mail accounts found in the Apple Mail directory, with display names and addresses where available."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func examineDatabaseTool() mcp.Tool {
	return mcp.NewTool(ToolExamineDatabase,
		mcp.WithDescription("Examine the Envelope Index schema: tables, columns, and row counts. Pass a table name for a single table."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("table",
			mcp.Description("Examine only this table"),
		),
	)
}

func searchAllTablesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchAllTables,
		mcp.WithDescription("Search every message-bearing table in the Envelope Index and merge the results. Useful when the schema differs from the expected layout."),
		mcp.WithReadOnlyHintAnnotation(true),
		withDate("Only rows dated on this day"),
		withLimit("10"),
	)
}

func findSentEmailsTool() mcp.Tool {
	return mcp.NewTool(ToolFindSentEmails,
		mcp.WithDescription("Find emails sent by an address on a specific date, with recipients resolved."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("date_filter",
			mcp.Required(),
			mcp.Description("Day the emails were sent (YYYY-MM-DD)"),
		),
		mcp.WithString("email_address",
			mcp.Description("Sender address; defaults to the configured primary_email"),
		),
		withLimit("10"),
	)
}

func searchBySubjectTool() mcp.Tool {
	return mcp.NewTool(ToolSearchBySubject,
		mcp.WithDescription("Search emails by subject text through the subject-interning table, case-insensitively."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("subject_text",
			mcp.Required(),
			mcp.Description("Text to find inside subjects"),
		),
		withDate("Only messages sent on this day"),
		withLimit("10"),
	)
}
