// Package dbtest provides shared database test helpers that seed
// Envelope Index-shaped SQLite fixtures. It is importable from any test
// package without circular dependency issues (it does not import
// internal/query or internal/store).
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calder/mailindex/internal/schema"
)

// Schema mirrors the Envelope Index tables this system queries. Column and
// table names match the V10 catalog.
const Schema = `
CREATE TABLE messages (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT,
	subject INTEGER,
	sender INTEGER,
	mailbox INTEGER,
	date_sent INTEGER,
	date_received INTEGER,
	read INTEGER NOT NULL DEFAULT 0,
	flagged INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE subjects (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	subject TEXT
);
CREATE TABLE addresses (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	comment TEXT
);
CREATE TABLE sender_addresses (
	sender INTEGER,
	address INTEGER
);
CREATE TABLE recipients (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	message INTEGER,
	address INTEGER,
	type INTEGER,
	position INTEGER
);
CREATE TABLE mailboxes (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT
);
`

// TestDB wraps a seeded fixture database with interning helpers that mirror
// how Apple Mail populates the join tables.
type TestDB struct {
	DB  *sql.DB
	T   testing.TB
	Cat *schema.Catalog

	nextSender int64
}

// New creates an in-memory fixture database with the V10 catalog.
func New(t testing.TB) *TestDB {
	t.Helper()
	return open(t, ":memory:")
}

// NewFile creates a file-backed fixture database under t.TempDir and returns
// it together with its path, for tests that exercise the connection provider.
func NewFile(t testing.TB) (*TestDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Envelope Index")
	return open(t, path), path
}

func open(t testing.TB, dsn string) *TestDB {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}

	cat, err := schema.ForVersion("V10")
	if err != nil {
		t.Fatalf("V10 catalog: %v", err)
	}

	return &TestDB{DB: db, T: t, Cat: cat, nextSender: 500}
}

// Exec runs a statement against the fixture, failing the test on error.
// Used for direct low-level setup like dangling foreign keys.
func (tdb *TestDB) Exec(query string, args ...any) {
	tdb.T.Helper()
	if _, err := tdb.DB.Exec(query, args...); err != nil {
		tdb.T.Fatalf("fixture exec %q: %v", query, err)
	}
}

// Email describes one message to seed. Zero-value fields get sentinel-free
// defaults: ReceivedAt falls back to SentAt, Mailbox to an INBOX url.
type Email struct {
	Subject    string
	From       string
	FromName   string
	To         []string
	Cc         []string
	SentAt     time.Time
	ReceivedAt time.Time
	Mailbox    string
	Read       bool
	Flagged    bool
	MessageID  string
}

// AddEmail inserts a message and its interned subject, sender, mailbox and
// recipient rows, returning the message ROWID.
func (tdb *TestDB) AddEmail(e Email) int64 {
	tdb.T.Helper()

	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = e.SentAt
	}
	if e.Mailbox == "" {
		e.Mailbox = "imap://fixture/INBOX"
	}

	subjectID := tdb.InternSubject(e.Subject)
	senderID := tdb.InternSender(e.From, e.FromName)
	mailboxID := tdb.InternMailbox(e.Mailbox)

	res, err := tdb.DB.Exec(`
		INSERT INTO messages (message_id, subject, sender, mailbox, date_sent, date_received, read, flagged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MessageID, subjectID, senderID, mailboxID,
		tdb.Cat.StoreTime(e.SentAt), tdb.Cat.StoreTime(e.ReceivedAt),
		boolInt(e.Read), boolInt(e.Flagged))
	if err != nil {
		tdb.T.Fatalf("insert message: %v", err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		tdb.T.Fatalf("message rowid: %v", err)
	}

	for i, to := range e.To {
		tdb.addRecipient(msgID, to, tdb.Cat.RecipientTypeTo, i)
	}
	for i, cc := range e.Cc {
		tdb.addRecipient(msgID, cc, tdb.Cat.RecipientTypeCc, i)
	}

	return msgID
}

func (tdb *TestDB) addRecipient(msgID int64, email string, recipType, position int) {
	tdb.T.Helper()
	addrID := tdb.InternAddress(email, "")
	tdb.Exec(`INSERT INTO recipients (message, address, type, position) VALUES (?, ?, ?, ?)`,
		msgID, addrID, recipType, position)
}

// InternSubject returns the ROWID of the subject row for text, inserting it
// on first use. Subjects are deduplicated as in the real store.
func (tdb *TestDB) InternSubject(text string) int64 {
	tdb.T.Helper()
	if id, ok := tdb.lookup("SELECT ROWID FROM subjects WHERE subject = ?", text); ok {
		return id
	}
	return tdb.insert("INSERT INTO subjects (subject) VALUES (?)", text)
}

// InternAddress returns the ROWID of the address row for email, inserting it
// on first use.
func (tdb *TestDB) InternAddress(email, comment string) int64 {
	tdb.T.Helper()
	if id, ok := tdb.lookup("SELECT ROWID FROM addresses WHERE address = ?", email); ok {
		return id
	}
	return tdb.insert("INSERT INTO addresses (address, comment) VALUES (?, ?)", email, comment)
}

// InternMailbox returns the ROWID of the mailbox row for url, inserting it
// on first use.
func (tdb *TestDB) InternMailbox(url string) int64 {
	tdb.T.Helper()
	if id, ok := tdb.lookup("SELECT ROWID FROM mailboxes WHERE url = ?", url); ok {
		return id
	}
	return tdb.insert("INSERT INTO mailboxes (url) VALUES (?)", url)
}

// InternSender returns the sender id associated with the address, creating
// the address and the sender_addresses mapping on first use. Sender ids are
// an independent id space in the real store, so they are counted separately.
func (tdb *TestDB) InternSender(email, name string) int64 {
	tdb.T.Helper()
	addrID := tdb.InternAddress(email, name)
	if id, ok := tdb.lookup("SELECT sender FROM sender_addresses WHERE address = ?", addrID); ok {
		return id
	}
	tdb.nextSender++
	tdb.Exec("INSERT INTO sender_addresses (sender, address) VALUES (?, ?)", tdb.nextSender, addrID)
	return tdb.nextSender
}

func (tdb *TestDB) lookup(query string, args ...any) (int64, bool) {
	tdb.T.Helper()
	var id int64
	err := tdb.DB.QueryRow(query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false
	}
	if err != nil {
		tdb.T.Fatalf("fixture lookup %q: %v", query, err)
	}
	return id, true
}

func (tdb *TestDB) insert(query string, args ...any) int64 {
	tdb.T.Helper()
	res, err := tdb.DB.Exec(query, args...)
	if err != nil {
		tdb.T.Fatalf("fixture insert %q: %v", query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tdb.T.Fatalf("fixture rowid: %v", err)
	}
	return id
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
