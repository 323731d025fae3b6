package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calder/mailindex/internal/schema"
	"github.com/calder/mailindex/internal/store"
)

// maxRecipientsInline caps how many To addresses are resolved per record,
// matching apple-mail-mcp output.
const maxRecipientsInline = 3

// Executor runs built queries against a per-call connection and maps rows to
// resolved records. Result counts are capped at max; hitting the cap is
// reported via ResultSet.Truncated rather than silently dropping rows.
type Executor struct {
	cat *schema.Catalog
	b   *Builder
	max int
}

// NewExecutor creates an executor for one schema version with a result cap.
func NewExecutor(cat *schema.Catalog, maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = DefaultLimit
	}
	return &Executor{cat: cat, b: NewBuilder(cat), max: maxResults}
}

// clamp bounds a requested limit to [1, e.max], defaulting when unset.
func (e *Executor) clamp(limit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > e.max {
		limit = e.max
	}
	return limit
}

// Search executes a criteria search.
func (e *Executor) Search(ctx context.Context, conn *store.Conn, s Search) (*ResultSet, error) {
	limit := e.clamp(s.Limit)
	s.Limit = limit + 1 // probe one past the cap to detect truncation

	sqlText, args, err := e.b.Messages(s)
	if err != nil {
		return nil, err
	}

	records, err := e.queryRecords(ctx, conn.DB(), sqlText, args)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return finish(records, limit), nil
}

// FindSent locates messages sent by an address on one calendar day, via the
// address -> sender id -> messages join path. An address absent from the
// store yields an empty result with a note, not an error.
func (e *Executor) FindSent(ctx context.Context, conn *store.Conn, email string, day *time.Time, limit int) (*ResultSet, error) {
	limit = e.clamp(limit)
	db := conn.DB()

	addrSQL, addrArgs := e.b.AddressID(email)
	var addressID int64
	err := db.QueryRowContext(ctx, addrSQL, addrArgs...).Scan(&addressID)
	if err == sql.ErrNoRows {
		return &ResultSet{
			Note: fmt.Sprintf("address %s not found in this store; check the primary_email configuration", email),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up address %s: %w", email, err)
	}

	sidSQL, sidArgs := e.b.SenderIDs(addressID)
	senderIDs, err := e.queryIDs(ctx, db, sidSQL, sidArgs)
	if err != nil {
		return nil, fmt.Errorf("look up sender ids: %w", err)
	}
	if len(senderIDs) == 0 {
		return &ResultSet{
			Note: fmt.Sprintf("no sender records for %s; the store has never seen mail sent from it", email),
		}, nil
	}

	msgSQL, msgArgs, err := e.b.MessagesBySenders(senderIDs, day, limit+1)
	if err != nil {
		return nil, err
	}
	records, err := e.queryRecords(ctx, db, msgSQL, msgArgs)
	if err != nil {
		return nil, fmt.Errorf("find sent messages: %w", err)
	}

	rs := finish(records, limit)
	if err := e.attachRecipients(ctx, db, rs.Records); err != nil {
		return nil, err
	}
	return rs, nil
}

// SearchBySubject finds messages through the interned subjects table.
func (e *Executor) SearchBySubject(ctx context.Context, conn *store.Conn, text string, day *time.Time, limit int) (*ResultSet, error) {
	limit = e.clamp(limit)
	db := conn.DB()

	subjSQL, subjArgs, err := e.b.SubjectIDs(text)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, subjSQL, subjArgs...)
	if err != nil {
		return nil, fmt.Errorf("look up subjects: %w", err)
	}
	defer rows.Close()

	var subjectIDs []int64
	for rows.Next() {
		var id int64
		var subj sql.NullString
		if err := rows.Scan(&id, &subj); err != nil {
			return nil, fmt.Errorf("scan subject row: %w", err)
		}
		subjectIDs = append(subjectIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	if len(subjectIDs) == 0 {
		return &ResultSet{
			Note: fmt.Sprintf("no subjects containing %q", text),
		}, nil
	}

	msgSQL, msgArgs, err := e.b.MessagesBySubjects(subjectIDs, day, limit+1)
	if err != nil {
		return nil, err
	}
	records, err := e.queryRecords(ctx, db, msgSQL, msgArgs)
	if err != nil {
		return nil, fmt.Errorf("search by subject: %w", err)
	}

	rs := finish(records, limit)
	if err := e.attachRecipients(ctx, db, rs.Records); err != nil {
		return nil, err
	}
	return rs, nil
}

// queryIDs collects int64 ids from a single-column query.
func (e *Executor) queryIDs(ctx context.Context, db *sql.DB, sqlText string, args []any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// queryRecords runs a resolved-select query and scans rows into records.
// Dangling joins arrive as NULLs and are mapped to sentinel values.
func (e *Executor) queryRecords(ctx context.Context, db *sql.DB, sqlText string, args []any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec           Record
			subject       sql.NullString
			sender        sql.NullString
			senderName    sql.NullString
			dateSent      sql.NullInt64
			dateReceived  sql.NullInt64
			read, flagged int
		)
		if err := rows.Scan(&rec.ID, &rec.MessageID, &subject, &sender, &senderName,
			&dateSent, &dateReceived, &rec.Mailbox, &read, &flagged); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		rec.Subject = NoSubject
		if subject.Valid && subject.String != "" {
			rec.Subject = subject.String
		}
		rec.Sender = UnknownSender
		if sender.Valid && sender.String != "" {
			rec.Sender = sender.String
		}
		if senderName.Valid {
			rec.SenderName = senderName.String
		}
		if dateSent.Valid {
			rec.DateSent = e.cat.CalendarTime(dateSent.Int64).Format(time.RFC3339)
		}
		if dateReceived.Valid {
			rec.DateReceived = e.cat.CalendarTime(dateReceived.Int64).Format(time.RFC3339)
		}
		rec.Read = read != 0
		rec.Flagged = flagged != 0

		records = append(records, rec)
	}
	return records, rows.Err()
}

// attachRecipients resolves up to maxRecipientsInline To addresses per
// record.
func (e *Executor) attachRecipients(ctx context.Context, db *sql.DB, records []Record) error {
	for i := range records {
		sqlText, args := e.b.Recipients(records[i].ID, maxRecipientsInline)
		rows, err := db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return fmt.Errorf("resolve recipients of message %d: %w", records[i].ID, err)
		}
		for rows.Next() {
			var addr sql.NullString
			if err := rows.Scan(&addr); err != nil {
				rows.Close()
				return fmt.Errorf("scan recipient: %w", err)
			}
			if addr.Valid && addr.String != "" {
				records[i].To = append(records[i].To, addr.String)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate recipients: %w", err)
		}
	}
	return nil
}

// finish applies the truncation protocol: records were fetched with a
// limit+1 probe, so a full overflow slot means the cap was hit.
func finish(records []Record, limit int) *ResultSet {
	rs := &ResultSet{Records: records}
	if len(records) > limit {
		rs.Records = records[:limit]
		rs.Truncated = true
	}
	return rs
}
