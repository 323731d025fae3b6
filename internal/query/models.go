// Package query translates high-level search intents into parameterized SQL
// against the Envelope Index and maps result rows to resolved records. The
// builder half is pure; the executor half owns row scanning and the result
// cap. All user-supplied values travel as bound parameters, never as SQL
// text.
package query

import (
	"errors"
	"time"
)

// ErrInvalidQuery indicates a search intent that violates a builder
// invariant, e.g. an empty filter set that would force a full-table scan.
var ErrInvalidQuery = errors.New("invalid query")

// Sentinel values substituted for dangling foreign keys, so partial metadata
// loss never aborts an otherwise valid result set.
const (
	NoSubject     = "(no subject)"
	UnknownSender = "(unknown)"
)

// DefaultLimit caps result counts when the caller does not ask for one.
// It matches the apple-mail-mcp per-tool default.
const DefaultLimit = 10

// Search is the transient intent for a criteria search. At least one filter
// must be set unless Recent marks an explicit recent-N listing.
type Search struct {
	Subject string // subject substring, case-insensitive
	Sender  string // sender address substring, case-insensitive
	Text    string // free text across subject and sender address
	Account string // account UUID, matched inside mailbox URLs

	After  *time.Time // inclusive lower bound on sent date
	Before *time.Time // last calendar day in range, inclusive

	// Recent marks an explicit "list recent N" request, the only way to
	// obtain results without any filter.
	Recent bool

	Limit int // 0 means DefaultLimit
}

// IsEmpty reports whether the search carries no filter at all.
func (s Search) IsEmpty() bool {
	return s.Subject == "" && s.Sender == "" && s.Text == "" &&
		s.Account == "" && s.After == nil && s.Before == nil
}

// Record is one resolved search result. Foreign keys are resolved to
// human-readable values; timestamps are normalized to RFC 3339 UTC.
type Record struct {
	ID           int64    `json:"id"`
	MessageID    string   `json:"message_id,omitempty"`
	Subject      string   `json:"subject"`
	Sender       string   `json:"sender"`
	SenderName   string   `json:"sender_name,omitempty"`
	To           []string `json:"to,omitempty"`
	DateSent     string   `json:"date_sent,omitempty"`
	DateReceived string   `json:"date_received,omitempty"`
	Mailbox      string   `json:"mailbox,omitempty"`
	Read         bool     `json:"read"`
	Flagged      bool     `json:"flagged"`

	// Source names the table a multi-table search found this record in.
	Source string `json:"source,omitempty"`
}

// SourceError is a per-table diagnostic from a multi-table search. A failed
// sub-query is reported here instead of failing the overall call.
type SourceError struct {
	Table   string `json:"table"`
	Message string `json:"error"`
}

// ResultSet is the outcome of one query execution. It is produced fresh per
// invocation and carries no cursor state.
type ResultSet struct {
	Records   []Record      `json:"results"`
	Truncated bool          `json:"truncated"`
	Partial   bool          `json:"partial,omitempty"`
	Sources   []SourceError `json:"source_errors,omitempty"`

	// Note carries a non-fatal explanation for an empty result, such as a
	// sender address that does not appear in the store at all.
	Note string `json:"note,omitempty"`
}
