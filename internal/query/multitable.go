package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/calder/mailindex/internal/store"
)

// SearchAllTables runs a targeted sub-query against every table that looks
// message-bearing, instead of one fragile composite join: the Envelope Index
// is wide and its table set varies across schema versions, so a missing
// table should cost one diagnostic, not the whole search.
//
// Results are merged and deduplicated by globally unique message id where
// one is present (first writer wins); per-table failures land in
// ResultSet.Sources and flip Partial while the remaining tables still
// contribute their rows.
func (e *Executor) SearchAllTables(ctx context.Context, conn *store.Conn, day *time.Time, perTableLimit int) (*ResultSet, error) {
	perTableLimit = e.clamp(perTableLimit)

	tables, err := conn.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	rs := &ResultSet{}
	seen := make(map[string]bool)

	for _, table := range tables {
		cols, err := conn.DescribeTable(ctx, table)
		if err != nil {
			rs.Sources = append(rs.Sources, SourceError{Table: table, Message: err.Error()})
			rs.Partial = true
			continue
		}
		if !e.messageLike(cols) {
			continue
		}

		var records []Record
		if table == e.cat.MessagesTable {
			records, err = e.primaryTableSearch(ctx, conn.DB(), day, perTableLimit)
		} else {
			records, err = e.genericTableSearch(ctx, conn.DB(), table, cols, day, perTableLimit)
		}
		if err != nil {
			rs.Sources = append(rs.Sources, SourceError{Table: table, Message: err.Error()})
			rs.Partial = true
			continue
		}

		if len(records) > perTableLimit {
			records = records[:perTableLimit]
			rs.Truncated = true
		}

		for _, rec := range records {
			rec.Source = table
			key := rec.MessageID
			if key == "" {
				key = fmt.Sprintf("%s:%d", table, rec.ID)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			rs.Records = append(rs.Records, rec)
		}
	}

	return rs, nil
}

// messageLike applies the marker-column heuristic: a table qualifies when it
// carries at least one column the catalog considers message-identifying.
func (e *Executor) messageLike(cols []store.Column) bool {
	names := make(map[string]bool, len(cols))
	for _, c := range cols {
		names[strings.ToLower(c.Name)] = true
	}
	for _, marker := range e.cat.MarkerColumns {
		if names[marker] {
			return true
		}
	}
	return false
}

// primaryTableSearch runs the fully resolved query against the catalog's
// messages table.
func (e *Executor) primaryTableSearch(ctx context.Context, db *sql.DB, day *time.Time, limit int) ([]Record, error) {
	s := Search{Recent: true, Limit: limit + 1}
	if day != nil {
		from, to := dayBounds(*day)
		s.After, s.Before = &from, &to
	}

	sqlText, args, err := e.b.Messages(s)
	if err != nil {
		return nil, err
	}
	return e.queryRecords(ctx, db, sqlText, args)
}

// genericTableSearch samples an unmapped message-like table, selecting the
// marker columns it actually has. Column names come from the store's own
// introspection, never from the caller, and are quoted; the date bounds are
// bound parameters.
func (e *Executor) genericTableSearch(ctx context.Context, db *sql.DB, table string, cols []store.Column, day *time.Time, limit int) ([]Record, error) {
	names := make(map[string]bool, len(cols))
	for _, c := range cols {
		names[strings.ToLower(c.Name)] = true
	}

	type role int
	const (
		roleSubject role = iota
		roleSender
		roleMessageID
	)

	selectExprs := []string{"rowid"}
	var roles []role
	if names["subject"] {
		selectExprs = append(selectExprs, quoteIdent("subject"))
		roles = append(roles, roleSubject)
	}
	if names["sender"] {
		selectExprs = append(selectExprs, quoteIdent("sender"))
		roles = append(roles, roleSender)
	}
	if names["message_id"] {
		selectExprs = append(selectExprs, quoteIdent("message_id"))
		roles = append(roles, roleMessageID)
	}

	dateCol := ""
	for _, c := range cols {
		if strings.Contains(strings.ToLower(c.Name), "date") {
			dateCol = c.Name
			break
		}
	}
	if dateCol != "" {
		selectExprs = append(selectExprs, quoteIdent(dateCol))
	}

	sqlText := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectExprs, ", "), quoteIdent(table))
	var args []any
	if day != nil && dateCol != "" {
		sqlText += fmt.Sprintf(" WHERE %s >= ? AND %s < ?", quoteIdent(dateCol), quoteIdent(dateCol))
		from, to := e.b.DayRange(*day)
		args = append(args, from, to)
	}
	sqlText += " ORDER BY rowid DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{Subject: NoSubject, Sender: UnknownSender}

		dests := make([]any, 0, len(selectExprs))
		dests = append(dests, &rec.ID)
		vals := make([]sql.NullString, len(roles))
		for i := range vals {
			dests = append(dests, &vals[i])
		}
		var rawDate sql.NullInt64
		if dateCol != "" {
			dests = append(dests, &rawDate)
		}

		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}

		for i, r := range roles {
			if !vals[i].Valid || vals[i].String == "" {
				continue
			}
			switch r {
			case roleSubject:
				rec.Subject = vals[i].String
			case roleSender:
				rec.Sender = vals[i].String
			case roleMessageID:
				rec.MessageID = vals[i].String
			}
		}
		if rawDate.Valid {
			rec.DateSent = e.cat.CalendarTime(rawDate.Int64).Format(time.RFC3339)
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// dayBounds returns the calendar [start, next-day) bounds for one day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// quoteIdent quotes an SQL identifier obtained from introspection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
