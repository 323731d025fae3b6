package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/calder/mailindex/internal/maildir"
	"github.com/calder/mailindex/internal/query"
	"github.com/calder/mailindex/internal/schema"
	"github.com/calder/mailindex/internal/store"
	"github.com/calder/mailindex/internal/testutil/dbtest"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments and returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result
// with the given kind prefix.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any, kind string) {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatalf("expected %s error result", kind)
	}
	if text := resultText(t, r); !strings.HasPrefix(text, kind+": ") {
		t.Fatalf("error %q does not carry kind %q", text, kind)
	}
}

// newTestHandlers wires handlers onto a seeded fixture store.
func newTestHandlers(t *testing.T, primaryEmail string, seed func(*dbtest.TestDB)) *handlers {
	t.Helper()
	tdb, path := dbtest.NewFile(t)
	if seed != nil {
		seed(tdb)
	}
	return newHandlers(
		store.NewProvider(path),
		query.NewExecutor(tdb.Cat, 50),
		maildir.Layout{Root: filepath.Dir(path), Version: "V10"},
		primaryEmail,
	)
}

func yesterday() (time.Time, string) {
	d := time.Now().UTC().AddDate(0, 0, -1)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return d, d.Format("2006-01-02")
}

// Scenario: the configured primary address sent one message yesterday;
// mail_find_sent_emails for that day returns exactly that message.
func TestFindSentEmailsYesterday(t *testing.T) {
	sentDay, dateArg := yesterday()
	h := newTestHandlers(t, "alice@example.com", func(tdb *dbtest.TestDB) {
		tdb.AddEmail(dbtest.Email{
			Subject: "Project deadline",
			From:    "alice@example.com",
			To:      []string{"bob@example.com"},
			SentAt:  sentDay.Add(10 * time.Hour),
		})
		tdb.AddEmail(dbtest.Email{
			Subject: "Older thread",
			From:    "alice@example.com",
			SentAt:  sentDay.AddDate(0, 0, -30),
		})
	})

	rs := runTool[query.ResultSet](t, ToolFindSentEmails, h.findSentEmails, map[string]any{
		"date_filter": dateArg,
	})
	if len(rs.Records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(rs.Records), rs.Records)
	}
	if rs.Records[0].Subject != "Project deadline" {
		t.Errorf("subject = %q", rs.Records[0].Subject)
	}
	if got := rs.Records[0].To; len(got) != 1 || got[0] != "bob@example.com" {
		t.Errorf("recipients = %v", got)
	}
}

func TestFindSentEmailsValidation(t *testing.T) {
	h := newTestHandlers(t, "", nil)

	runToolExpectError(t, ToolFindSentEmails, h.findSentEmails, map[string]any{}, "invalid_arguments")
	runToolExpectError(t, ToolFindSentEmails, h.findSentEmails, map[string]any{
		"date_filter": "yesterday",
	}, "invalid_arguments")
	// No primary address configured and none given.
	runToolExpectError(t, ToolFindSentEmails, h.findSentEmails, map[string]any{
		"date_filter": "2024-03-11",
	}, "invalid_arguments")
}

// Scenario: subject search matches case-insensitively and orders newest
// first.
func TestSearchBySubjectScenario(t *testing.T) {
	h := newTestHandlers(t, "", func(tdb *dbtest.TestDB) {
		tdb.AddEmail(dbtest.Email{
			Subject: "Project deadline",
			From:    "alice@example.com",
			SentAt:  time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		})
		tdb.AddEmail(dbtest.Email{
			Subject: "Deadline extended",
			From:    "bob@example.com",
			SentAt:  time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
		})
		tdb.AddEmail(dbtest.Email{
			Subject: "Lunch",
			From:    "carol@example.com",
			SentAt:  time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
		})
	})

	rs := runTool[query.ResultSet](t, ToolSearchBySubject, h.searchBySubject, map[string]any{
		"subject_text": "deadline",
	})
	if len(rs.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(rs.Records))
	}
	if rs.Records[0].Subject != "Deadline extended" || rs.Records[1].Subject != "Project deadline" {
		t.Errorf("wrong order: %q then %q", rs.Records[0].Subject, rs.Records[1].Subject)
	}

	runToolExpectError(t, ToolSearchBySubject, h.searchBySubject, map[string]any{}, "invalid_arguments")
}

// Scenario: two account directories yield exactly two account records.
func TestListAccountsScenario(t *testing.T) {
	tdb, path := dbtest.NewFile(t)

	// The fixture store sits in the temp dir directly; build the version
	// layout around it.
	root := filepath.Dir(path)
	for _, uuid := range []string{
		"13C9A646-52AE-4723-89A1-E07FFBDDEED3",
		"7E0C4B2A-1A2B-4111-8222-0123456789AB",
	} {
		if err := os.MkdirAll(filepath.Join(root, "V10", uuid), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cat := tdb.Cat
	h := newHandlers(
		store.NewProvider(path),
		query.NewExecutor(cat, 50),
		maildir.Layout{Root: root, Version: "V10"},
		"",
	)

	resp := runTool[struct {
		Version  string            `json:"version"`
		Accounts []maildir.Account `json:"accounts"`
	}](t, ToolListAccounts, h.listAccounts, nil)

	if resp.Version != "V10" {
		t.Errorf("version = %q", resp.Version)
	}
	if len(resp.Accounts) != 2 {
		t.Fatalf("got %d accounts, want 2: %+v", len(resp.Accounts), resp.Accounts)
	}
}

func TestListAccountsMissingVersionDir(t *testing.T) {
	h := newTestHandlers(t, "", nil)
	h.layout = maildir.Layout{Root: t.TempDir(), Version: "V10"}

	resp := runTool[struct {
		Note string `json:"note"`
	}](t, ToolListAccounts, h.listAccounts, nil)
	if !strings.Contains(resp.Note, "V10") {
		t.Errorf("note = %q", resp.Note)
	}
}

// Scenario: examining a table that does not exist is a clean unknown_table
// error. Table names are case-sensitive.
func TestExamineDatabaseUnknownTable(t *testing.T) {
	h := newTestHandlers(t, "", nil)

	runToolExpectError(t, ToolExamineDatabase, h.examineDatabase, map[string]any{
		"table": "Messages",
	}, "unknown_table")
}

func TestExamineDatabase(t *testing.T) {
	h := newTestHandlers(t, "", func(tdb *dbtest.TestDB) {
		tdb.AddEmail(dbtest.Email{
			Subject: "One",
			From:    "alice@example.com",
			SentAt:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		})
	})

	t.Run("single table", func(t *testing.T) {
		info := runTool[TableInfo](t, ToolExamineDatabase, h.examineDatabase, map[string]any{
			"table": "messages",
		})
		if info.Name != "messages" || info.RowCount != 1 {
			t.Errorf("info = %+v", info)
		}
		found := false
		for _, c := range info.Columns {
			if c.Name == "date_sent" {
				found = true
			}
		}
		if !found {
			t.Errorf("date_sent column missing: %+v", info.Columns)
		}
	})

	t.Run("all tables", func(t *testing.T) {
		infos := runTool[[]TableInfo](t, ToolExamineDatabase, h.examineDatabase, nil)
		names := make(map[string]bool, len(infos))
		for _, info := range infos {
			names[info.Name] = true
		}
		for _, want := range []string{"messages", "subjects", "addresses", "mailboxes"} {
			if !names[want] {
				t.Errorf("table %q missing from dump", want)
			}
		}
	})
}

func TestSearchTool(t *testing.T) {
	h := newTestHandlers(t, "", func(tdb *dbtest.TestDB) {
		tdb.AddEmail(dbtest.Email{
			Subject: "Quarterly report",
			From:    "alice@example.com",
			SentAt:  time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		})
		tdb.AddEmail(dbtest.Email{
			Subject: "Standup notes",
			From:    "bob@example.com",
			SentAt:  time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC),
		})
	})

	t.Run("text filter", func(t *testing.T) {
		rs := runTool[query.ResultSet](t, ToolSearch, h.search, map[string]any{
			"query": "quarterly",
		})
		if len(rs.Records) != 1 || rs.Records[0].Subject != "Quarterly report" {
			t.Fatalf("records = %+v", rs.Records)
		}
	})

	t.Run("recent listing", func(t *testing.T) {
		rs := runTool[query.ResultSet](t, ToolSearch, h.search, map[string]any{
			"recent": true,
			"limit":  float64(1),
		})
		if len(rs.Records) != 1 || rs.Records[0].Subject != "Standup notes" {
			t.Fatalf("records = %+v", rs.Records)
		}
		if !rs.Truncated {
			t.Error("limit hit without truncated flag")
		}
	})

	t.Run("no filters", func(t *testing.T) {
		runToolExpectError(t, ToolSearch, h.search, map[string]any{}, "invalid_query")
	})

	t.Run("bad limit", func(t *testing.T) {
		runToolExpectError(t, ToolSearch, h.search, map[string]any{
			"query": "x",
			"limit": float64(-5),
		}, "invalid_arguments")
	})

	t.Run("bad date", func(t *testing.T) {
		runToolExpectError(t, ToolSearch, h.search, map[string]any{
			"query": "x",
			"after": "last tuesday",
		}, "invalid_arguments")
	})

	t.Run("date window", func(t *testing.T) {
		// before names the last day of the window, inclusive.
		rs := runTool[query.ResultSet](t, ToolSearch, h.search, map[string]any{
			"after":  "2024-03-11",
			"before": "2024-03-11",
		})
		if len(rs.Records) != 1 || rs.Records[0].Subject != "Standup notes" {
			t.Fatalf("records = %+v", rs.Records)
		}
	})
}

func TestSearchAllTablesTool(t *testing.T) {
	h := newTestHandlers(t, "", func(tdb *dbtest.TestDB) {
		tdb.AddEmail(dbtest.Email{
			Subject:   "Merge me",
			From:      "alice@example.com",
			SentAt:    time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			MessageID: "<merge@example.com>",
		})
	})

	rs := runTool[query.ResultSet](t, ToolSearchAllTables, h.searchAllTables, nil)
	if rs.Partial {
		t.Fatalf("healthy store reported partial: %+v", rs.Sources)
	}
	found := false
	for _, rec := range rs.Records {
		if rec.Source == "messages" && rec.MessageID == "<merge@example.com>" {
			found = true
		}
	}
	if !found {
		t.Errorf("seeded message missing from merged results: %+v", rs.Records)
	}
}

func TestStoreNotFoundEnvelope(t *testing.T) {
	cat, err := schema.ForVersion("V10")
	if err != nil {
		t.Fatal(err)
	}
	h := newHandlers(
		store.NewProvider(filepath.Join(t.TempDir(), "Envelope Index")),
		query.NewExecutor(cat, 50),
		maildir.Layout{Root: t.TempDir(), Version: "V10"},
		"",
	)

	r := callToolDirect(t, ToolSearch, h.search, map[string]any{"recent": true})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	text := resultText(t, r)
	if !strings.HasPrefix(text, "store_not_found: ") {
		t.Errorf("error = %q", text)
	}
	if !strings.Contains(text, "mail_dir") {
		t.Errorf("error lacks remediation hint: %q", text)
	}
}

func TestLockedStoreEnvelope(t *testing.T) {
	tdb, path := dbtest.NewFile(t)

	// Hold an exclusive write lock on a dedicated connection while the
	// handler tries to read.
	ctx := context.Background()
	locker, err := tdb.DB.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer locker.Close()
	if _, err := locker.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Skipf("cannot take exclusive lock: %v", err)
	}
	defer locker.ExecContext(ctx, "COMMIT")

	h := newHandlers(
		store.NewProvider(path),
		query.NewExecutor(tdb.Cat, 50),
		maildir.Layout{Root: filepath.Dir(path), Version: "V10"},
		"",
	)

	r := callToolDirect(t, ToolSearch, h.search, map[string]any{"recent": true})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	if text := resultText(t, r); !strings.HasPrefix(text, "store_locked: ") {
		t.Errorf("error = %q", text)
	}
}
