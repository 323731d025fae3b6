package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/calder/mailindex/internal/schema"
)

// Builder produces parameterized SQL from search intents. Table and column
// names come exclusively from the schema catalog; user-supplied values are
// always returned as bound arguments, never embedded in the query text.
type Builder struct {
	cat *schema.Catalog
}

// NewBuilder creates a builder for one schema version.
func NewBuilder(cat *schema.Catalog) *Builder {
	return &Builder{cat: cat}
}

// likePattern wraps a user term for substring LIKE matching. LIKE wildcards
// inside the term are escaped so they match literally; the pattern is still
// bound as a parameter.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// resolvedSelect is the shared SELECT/JOIN prefix that resolves subject,
// sender address, sender display name and mailbox through the join tables.
// Dangling references survive the LEFT JOINs and are mapped to sentinels
// during scanning.
func (b *Builder) resolvedSelect() string {
	c := b.cat
	readExpr, flaggedExpr := "0", "0"
	if c.ReadColumn != "" {
		readExpr = fmt.Sprintf("COALESCE(m.%s, 0)", c.ReadColumn)
	}
	if c.FlaggedColumn != "" {
		flaggedExpr = fmt.Sprintf("COALESCE(m.%s, 0)", c.FlaggedColumn)
	}

	return fmt.Sprintf(`
		SELECT m.ROWID, COALESCE(m.%s, ''), s.%s, a.%s, a.%s,
			m.%s, m.%s, COALESCE(mb.%s, ''), %s, %s
		FROM %s m
		LEFT JOIN %s s ON m.%s = s.ROWID
		LEFT JOIN %s sa ON m.%s = sa.%s
		LEFT JOIN %s a ON sa.%s = a.ROWID
		LEFT JOIN %s mb ON m.%s = mb.ROWID`,
		c.MessageIDColumn, c.SubjectTextColumn, c.AddressColumn, c.CommentColumn,
		c.DateSentColumn, c.DateReceivedColumn, c.MailboxURLColumn, readExpr, flaggedExpr,
		c.MessagesTable,
		c.SubjectsTable, c.SubjectKeyColumn,
		c.SenderJoinTable, c.SenderKeyColumn, c.SenderColumn,
		c.AddressesTable, c.SenderAddressColumn,
		c.MailboxesTable, c.MailboxKeyColumn)
}

// Messages builds the criteria search query. An empty filter set is an
// invariant violation unless the intent is an explicit recent listing.
func (b *Builder) Messages(s Search) (string, []any, error) {
	if s.IsEmpty() && !s.Recent {
		return "", nil, fmt.Errorf("%w: at least one filter is required; pass recent=true to list latest messages", ErrInvalidQuery)
	}

	c := b.cat
	var conditions []string
	var args []any

	if s.Subject != "" {
		conditions = append(conditions, fmt.Sprintf(`s.%s LIKE ? ESCAPE '\'`, c.SubjectTextColumn))
		args = append(args, likePattern(s.Subject))
	}
	if s.Sender != "" {
		conditions = append(conditions, fmt.Sprintf(`a.%s LIKE ? ESCAPE '\'`, c.AddressColumn))
		args = append(args, likePattern(s.Sender))
	}
	if s.Text != "" {
		conditions = append(conditions, fmt.Sprintf(`(s.%s LIKE ? ESCAPE '\' OR a.%s LIKE ? ESCAPE '\')`,
			c.SubjectTextColumn, c.AddressColumn))
		pat := likePattern(s.Text)
		args = append(args, pat, pat)
	}
	if s.Account != "" {
		conditions = append(conditions, fmt.Sprintf(`mb.%s LIKE ? ESCAPE '\'`, c.MailboxURLColumn))
		args = append(args, likePattern(s.Account))
	}
	if s.After != nil {
		conditions = append(conditions, fmt.Sprintf("m.%s >= ?", c.DateSentColumn))
		args = append(args, c.StoreTime(*s.After))
	}
	if s.Before != nil {
		// Before names a calendar day; the whole day is in range.
		conditions = append(conditions, fmt.Sprintf("m.%s < ?", c.DateSentColumn))
		args = append(args, c.StoreTime(s.Before.AddDate(0, 0, 1)))
	}

	sql := b.resolvedSelect()
	if len(conditions) > 0 {
		sql += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	sql += fmt.Sprintf("\n\t\tGROUP BY m.ROWID\n\t\tORDER BY m.%s DESC\n\t\tLIMIT ?", c.DateSentColumn)

	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)

	return sql, args, nil
}

// AddressID looks up the row id of an exact email address,
// case-insensitively.
func (b *Builder) AddressID(email string) (string, []any) {
	c := b.cat
	sql := fmt.Sprintf("SELECT ROWID FROM %s WHERE %s = ? COLLATE NOCASE",
		c.AddressesTable, c.AddressColumn)
	return sql, []any{email}
}

// SenderIDs looks up the sender ids mapped to an address row through the
// sender join table.
func (b *Builder) SenderIDs(addressID int64) (string, []any) {
	c := b.cat
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		c.SenderColumn, c.SenderJoinTable, c.SenderAddressColumn)
	return sql, []any{addressID}
}

// MessagesBySenders builds the sent-messages query for a set of sender ids,
// optionally restricted to one calendar day.
func (b *Builder) MessagesBySenders(senderIDs []int64, day *time.Time, limit int) (string, []any, error) {
	if len(senderIDs) == 0 {
		return "", nil, fmt.Errorf("%w: no sender ids to search for", ErrInvalidQuery)
	}
	return b.messagesByKey(b.cat.SenderKeyColumn, senderIDs, day, limit), b.keyArgs(senderIDs, day, limit), nil
}

// SubjectIDs looks up subject rows containing text, case-insensitively.
func (b *Builder) SubjectIDs(text string) (string, []any, error) {
	if text == "" {
		return "", nil, fmt.Errorf("%w: subject text is required", ErrInvalidQuery)
	}
	c := b.cat
	sql := fmt.Sprintf(`SELECT ROWID, %s FROM %s WHERE %s LIKE ? ESCAPE '\'`,
		c.SubjectTextColumn, c.SubjectsTable, c.SubjectTextColumn)
	return sql, []any{likePattern(text)}, nil
}

// MessagesBySubjects builds the message query for a set of interned subject
// ids, optionally restricted to one calendar day.
func (b *Builder) MessagesBySubjects(subjectIDs []int64, day *time.Time, limit int) (string, []any, error) {
	if len(subjectIDs) == 0 {
		return "", nil, fmt.Errorf("%w: no subject ids to search for", ErrInvalidQuery)
	}
	return b.messagesByKey(b.cat.SubjectKeyColumn, subjectIDs, day, limit), b.keyArgs(subjectIDs, day, limit), nil
}

// messagesByKey builds a resolved message query restricted by an IN list on
// one messages column. The id values themselves are bound.
func (b *Builder) messagesByKey(keyColumn string, ids []int64, day *time.Time, limit int) string {
	c := b.cat
	sql := b.resolvedSelect()
	sql += fmt.Sprintf("\n\t\tWHERE m.%s IN (%s)", keyColumn, placeholders(len(ids)))
	if day != nil {
		sql += fmt.Sprintf(" AND m.%s >= ? AND m.%s < ?", c.DateSentColumn, c.DateSentColumn)
	}
	sql += fmt.Sprintf("\n\t\tGROUP BY m.ROWID\n\t\tORDER BY m.%s DESC\n\t\tLIMIT ?", c.DateSentColumn)
	return sql
}

func (b *Builder) keyArgs(ids []int64, day *time.Time, limit int) []any {
	args := make([]any, 0, len(ids)+3)
	for _, id := range ids {
		args = append(args, id)
	}
	if day != nil {
		from, to := b.DayRange(*day)
		args = append(args, from, to)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return append(args, limit)
}

// Recipients builds the lookup for a message's To recipients, resolved to
// address strings and capped at max.
func (b *Builder) Recipients(messageID int64, max int) (string, []any) {
	c := b.cat
	sql := fmt.Sprintf(`
		SELECT a.%s
		FROM %s r
		JOIN %s a ON r.%s = a.ROWID
		WHERE r.%s = ? AND r.%s = ?
		ORDER BY r.%s
		LIMIT ?`,
		c.AddressColumn,
		c.RecipientsTable,
		c.AddressesTable, c.RecipientAddressColumn,
		c.RecipientMessageColumn, c.RecipientTypeColumn,
		c.RecipientPositionColumn)
	return sql, []any{messageID, c.RecipientTypeTo, max}
}

// DayRange converts one calendar day into store-native [from, to) bounds.
func (b *Builder) DayRange(day time.Time) (int64, int64) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return b.cat.StoreTime(start), b.cat.StoreTime(start.AddDate(0, 0, 1))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
