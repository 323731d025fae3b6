// Package schema holds static knowledge of the Envelope Index layout: table
// and column names, join keys, recipient type codes, and the date encoding.
// The physical names drifted across Apple Mail versions, so everything is
// keyed by a version tag chosen at configuration time. The package is pure
// lookup data and performs no I/O.
package schema

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownVersion indicates a schema version tag with no catalog entry.
// It is a configuration error and should surface at startup, not per query.
var ErrUnknownVersion = errors.New("unknown schema version")

// AppleEpochOffset is the number of seconds between the Unix epoch and
// Apple absolute time (2001-01-01 00:00:00 UTC), which newer Envelope Index
// versions use as their date reference.
const AppleEpochOffset int64 = 978307200

// Catalog maps logical Envelope Index concepts to physical identifiers for
// one schema version. Instances are immutable after ForVersion returns.
type Catalog struct {
	Version string

	MessagesTable   string
	SubjectsTable   string
	AddressesTable  string
	RecipientsTable string
	SenderJoinTable string
	MailboxesTable  string

	// messages columns
	MessageIDColumn    string
	SubjectKeyColumn   string // FK into SubjectsTable ROWID
	SenderKeyColumn    string // sender id resolved through SenderJoinTable
	MailboxKeyColumn   string // FK into MailboxesTable ROWID
	DateSentColumn     string
	DateReceivedColumn string
	ReadColumn         string
	FlaggedColumn      string

	SubjectTextColumn string // subjects
	AddressColumn     string // addresses: raw email string
	CommentColumn     string // addresses: optional display name

	// recipients join table
	RecipientMessageColumn  string
	RecipientAddressColumn  string
	RecipientTypeColumn     string
	RecipientPositionColumn string

	RecipientTypeTo  int
	RecipientTypeCc  int
	RecipientTypeBcc int

	// sender_addresses join table
	SenderColumn        string
	SenderAddressColumn string

	MailboxURLColumn string // mailboxes

	// DateEpochOffset is added to a raw store date to obtain Unix seconds.
	// Zero for versions that store Unix time directly.
	DateEpochOffset int64

	// MarkerColumns identify a table as message-bearing during
	// multi-table search: a table qualifies if it has at least one.
	MarkerColumns []string
}

// StoreTime converts a calendar time to the store's native date encoding.
func (c *Catalog) StoreTime(t time.Time) int64 {
	return t.Unix() - c.DateEpochOffset
}

// CalendarTime converts a store-native date value back to calendar time in UTC.
func (c *Catalog) CalendarTime(raw int64) time.Time {
	return time.Unix(raw+c.DateEpochOffset, 0).UTC()
}

// baseCatalog returns the layout shared by all known versions. Version
// entries override only what drifted.
func baseCatalog(version string) Catalog {
	return Catalog{
		Version: version,

		MessagesTable:   "messages",
		SubjectsTable:   "subjects",
		AddressesTable:  "addresses",
		RecipientsTable: "recipients",
		SenderJoinTable: "sender_addresses",
		MailboxesTable:  "mailboxes",

		MessageIDColumn:    "message_id",
		SubjectKeyColumn:   "subject",
		SenderKeyColumn:    "sender",
		MailboxKeyColumn:   "mailbox",
		DateSentColumn:     "date_sent",
		DateReceivedColumn: "date_received",
		ReadColumn:         "read",
		FlaggedColumn:      "flagged",

		SubjectTextColumn: "subject",
		AddressColumn:     "address",
		CommentColumn:     "comment",

		RecipientMessageColumn:  "message",
		RecipientAddressColumn:  "address",
		RecipientTypeColumn:     "type",
		RecipientPositionColumn: "position",

		RecipientTypeTo:  1,
		RecipientTypeCc:  2,
		RecipientTypeBcc: 3,

		SenderColumn:        "sender",
		SenderAddressColumn: "address",

		MailboxURLColumn: "url",

		MarkerColumns: []string{"subject", "sender", "date_sent", "date_received", "message_id"},
	}
}

// Versions returns the known schema version tags in ascending order.
func Versions() []string {
	return []string{"V7", "V8", "V9", "V10"}
}

// ForVersion returns the catalog for a schema version tag. Unknown tags
// return ErrUnknownVersion; callers are expected to fail at startup rather
// than carry an incomplete catalog into query time.
func ForVersion(tag string) (*Catalog, error) {
	switch tag {
	case "V7", "V8":
		c := baseCatalog(tag)
		// Older stores kept Unix-epoch dates and had no flag columns.
		c.ReadColumn = ""
		c.FlaggedColumn = ""
		return &c, nil
	case "V9", "V10":
		c := baseCatalog(tag)
		c.DateEpochOffset = AppleEpochOffset
		return &c, nil
	default:
		return nil, fmt.Errorf("schema version %q: %w (known: %v)", tag, ErrUnknownVersion, Versions())
	}
}
