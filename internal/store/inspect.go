package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column describes one column of an inspected table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListTables returns the names of all tables in the store, sorted.
func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	return c.listMaster(ctx, "table")
}

// ListViews returns the names of all views in the store, sorted.
func (c *Conn) ListViews(ctx context.Context) ([]string, error) {
	return c.listMaster(ctx, "view")
}

func (c *Conn) listMaster(ctx context.Context, kind string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = ? ORDER BY name", kind)
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s name: %w", kind, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasTable reports whether the named table exists at the current schema
// version.
func (c *Conn) HasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %q: %w", name, err)
	}
	return n > 0, nil
}

// DescribeTable returns the column names and declared types of a table.
// A nonexistent table yields ErrUnknownTable.
func (c *Conn) DescribeTable(ctx context.Context, name string) ([]Column, error) {
	if err := c.requireTable(ctx, name); err != nil {
		return nil, err
	}

	// PRAGMA arguments cannot be bound; the name is validated against
	// sqlite_master above and quoted here.
	rows, err := c.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(name)+")")
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid        int
			col        Column
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dfltValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan table_info row: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// CountRows returns the number of rows in a table. A nonexistent table
// yields ErrUnknownTable.
func (c *Conn) CountRows(ctx context.Context, name string) (int64, error) {
	if err := c.requireTable(ctx, name); err != nil {
		return 0, err
	}

	var count int64
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows of %q: %w", name, err)
	}
	return count, nil
}

func (c *Conn) requireTable(ctx context.Context, name string) error {
	ok, err := c.HasTable(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q does not exist at this schema version; use ListTables to see what does", ErrUnknownTable, name)
	}
	return nil
}

// quoteIdent quotes an SQL identifier. Only used for names already validated
// against sqlite_master, since identifiers cannot be bound as parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
