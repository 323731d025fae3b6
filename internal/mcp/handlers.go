package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/calder/mailindex/internal/maildir"
	"github.com/calder/mailindex/internal/query"
	"github.com/calder/mailindex/internal/store"
)

// maxLimit bounds the limit argument itself; the executor applies the
// configured result cap on top.
const maxLimit = 1000

type handlers struct {
	provider     *store.Provider
	exec         *query.Executor
	layout       maildir.Layout
	primaryEmail string
}

// acquire opens a per-call read-only connection. The returned result is
// non-nil when acquisition failed and should be sent to the client as-is.
func (h *handlers) acquire(ctx context.Context) (*store.Conn, *mcp.CallToolResult) {
	conn, err := h.provider.Acquire(ctx)
	if err != nil {
		return nil, toolError(err)
	}
	return conn, nil
}

// toolError wraps an error into the kind-prefixed envelope clients match on.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(errorKind(err) + ": " + err.Error())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, store.ErrStoreNotFound):
		return "store_not_found"
	case errors.Is(err, store.ErrStorePermission):
		return "store_permission"
	case errors.Is(err, store.ErrStoreLocked):
		return "store_locked"
	case errors.Is(err, store.ErrUnknownTable):
		return "unknown_table"
	case errors.Is(err, query.ErrInvalidQuery):
		return "invalid_query"
	default:
		return "query_failed"
	}
}

// argError reports a malformed or missing tool argument.
func argError(format string, a ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_arguments: " + fmt.Sprintf(format, a...))
}

// getDateArg extracts an optional date (YYYY-MM-DD) from the arguments map.
func getDateArg(args map[string]any, key string) (*time.Time, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("field %s: %q is not a YYYY-MM-DD date", key, v)
	}
	return &t, nil
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	limit, err := limitArg(args, "limit", query.DefaultLimit)
	if err != nil {
		return argError("%v", err), nil
	}
	s := query.Search{Limit: limit}
	if v, ok := args["query"].(string); ok {
		s.Text = v
	}
	if v, ok := args["account"].(string); ok {
		s.Account = v
	}
	if v, ok := args["recent"].(bool); ok {
		s.Recent = v
	}
	if s.After, err = getDateArg(args, "after"); err != nil {
		return argError("%v", err), nil
	}
	if s.Before, err = getDateArg(args, "before"); err != nil {
		return argError("%v", err), nil
	}

	conn, errResult := h.acquire(ctx)
	if errResult != nil {
		return errResult, nil
	}
	defer conn.Close()

	rs, err := h.exec.Search(ctx, conn, s)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rs)
}

func (h *handlers) listAccounts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accounts, err := maildir.ListAccounts(h.layout)
	if errors.Is(err, fs.ErrNotExist) {
		resp := struct {
			Version string `json:"version"`
			Note    string `json:"note"`
		}{
			Version: h.layout.Version,
			Note: fmt.Sprintf("no %s mail directory under %s; common mail_version values are V10, V9, V8",
				h.layout.Version, h.layout.Root),
		}
		return jsonResult(resp)
	}
	if err != nil {
		return toolError(err), nil
	}

	resp := struct {
		Version  string            `json:"version"`
		Accounts []maildir.Account `json:"accounts"`
	}{
		Version:  h.layout.Version,
		Accounts: accounts,
	}
	return jsonResult(resp)
}

// TableInfo is one table's schema snapshot in an examine response.
type TableInfo struct {
	Name     string         `json:"name"`
	Columns  []store.Column `json:"columns"`
	RowCount int64          `json:"row_count"`
}

func (h *handlers) examineDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	conn, errResult := h.acquire(ctx)
	if errResult != nil {
		return errResult, nil
	}
	defer conn.Close()

	if table, ok := args["table"].(string); ok && table != "" {
		info, err := h.describeOne(ctx, conn, table)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(info)
	}

	tables, err := conn.ListTables(ctx)
	if err != nil {
		return toolError(err), nil
	}

	infos := make([]TableInfo, 0, len(tables))
	for _, table := range tables {
		info, err := h.describeOne(ctx, conn, table)
		if err != nil {
			return toolError(err), nil
		}
		infos = append(infos, *info)
	}
	return jsonResult(infos)
}

func (h *handlers) describeOne(ctx context.Context, conn *store.Conn, table string) (*TableInfo, error) {
	cols, err := conn.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	count, err := conn.CountRows(ctx, table)
	if err != nil {
		return nil, err
	}
	return &TableInfo{Name: table, Columns: cols, RowCount: count}, nil
}

func (h *handlers) searchAllTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	day, err := getDateArg(args, "date_filter")
	if err != nil {
		return argError("%v", err), nil
	}
	limit, err := limitArg(args, "limit", query.DefaultLimit)
	if err != nil {
		return argError("%v", err), nil
	}

	conn, errResult := h.acquire(ctx)
	if errResult != nil {
		return errResult, nil
	}
	defer conn.Close()

	rs, err := h.exec.SearchAllTables(ctx, conn, day, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rs)
}

func (h *handlers) findSentEmails(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	day, err := getDateArg(args, "date_filter")
	if err != nil {
		return argError("%v", err), nil
	}
	if day == nil {
		return argError("field date_filter is required"), nil
	}

	email, _ := args["email_address"].(string)
	if email == "" {
		email = h.primaryEmail
	}
	if email == "" {
		return argError("field email_address is required when no primary_email is configured"), nil
	}

	limit, err := limitArg(args, "limit", query.DefaultLimit)
	if err != nil {
		return argError("%v", err), nil
	}

	conn, errResult := h.acquire(ctx)
	if errResult != nil {
		return errResult, nil
	}
	defer conn.Close()

	rs, err := h.exec.FindSent(ctx, conn, email, day, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rs)
}

func (h *handlers) searchBySubject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	text, _ := args["subject_text"].(string)
	if text == "" {
		return argError("field subject_text is required"), nil
	}

	day, err := getDateArg(args, "date_filter")
	if err != nil {
		return argError("%v", err), nil
	}
	limit, err := limitArg(args, "limit", query.DefaultLimit)
	if err != nil {
		return argError("%v", err), nil
	}

	conn, errResult := h.acquire(ctx)
	if errResult != nil {
		return errResult, nil
	}
	defer conn.Close()

	rs, err := h.exec.SearchBySubject(ctx, conn, text, day, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rs)
}

// limitArg extracts a positive integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit to prevent excessive
// result sets.
func limitArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key].(float64)
	if !ok {
		return def, nil
	}
	if math.IsNaN(v) || v < 1 {
		return 0, fmt.Errorf("field %s: must be a positive number", key)
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit, nil
	}
	return int(v), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
