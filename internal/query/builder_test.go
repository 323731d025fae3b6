package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/calder/mailindex/internal/schema"
)

func v10(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.ForVersion("V10")
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestMessagesEmptyFilterRejected(t *testing.T) {
	b := NewBuilder(v10(t))

	_, _, err := b.Messages(Search{})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for empty filter set, got %v", err)
	}

	// An explicit recent listing is the only unfiltered query allowed.
	if _, _, err := b.Messages(Search{Recent: true}); err != nil {
		t.Fatalf("recent listing should build: %v", err)
	}
}

// TestMessagesBindsUserValues verifies the hard invariant that user-supplied
// strings never appear in query text, only in the bound argument list.
func TestMessagesBindsUserValues(t *testing.T) {
	b := NewBuilder(v10(t))

	payloads := []string{
		`'; DROP TABLE messages; --`,
		`Re: 100% "done" (really)`,
		`alice@example.com' OR '1'='1`,
		`semi;colon_and_under%score`,
	}

	for _, payload := range payloads {
		fields := map[string]Search{
			"subject": {Subject: payload},
			"sender":  {Sender: payload},
			"text":    {Text: payload},
			"account": {Account: payload},
		}
		for field, s := range fields {
			t.Run(field+"_"+payload[:8], func(t *testing.T) {
				sqlText, args, err := b.Messages(s)
				if err != nil {
					t.Fatalf("build: %v", err)
				}
				if strings.Contains(sqlText, payload) {
					t.Errorf("raw value embedded in query text:\n%s", sqlText)
				}
				found := false
				for _, a := range args {
					if str, ok := a.(string); ok && str == likePattern(payload) {
						found = true
					}
				}
				if !found {
					t.Errorf("expected %q bound as a parameter, args: %v", likePattern(payload), args)
				}
			})
		}
	}
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"deadline", "%deadline%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`back\slash`, `%back\\slash%`},
	}
	for _, tt := range tests {
		if got := likePattern(tt.in); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessagesDateBoundsUseStoreEpoch(t *testing.T) {
	cat := v10(t)
	b := NewBuilder(cat)

	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	_, args, err := b.Messages(Search{After: &after, Before: &before})
	if err != nil {
		t.Fatal(err)
	}

	wantAfter := after.Unix() - schema.AppleEpochOffset
	// The Before day is inclusive, so the bound is the start of the next day.
	wantBefore := before.AddDate(0, 0, 1).Unix() - schema.AppleEpochOffset
	if args[0] != wantAfter || args[1] != wantBefore {
		t.Errorf("date args = %v, want [%d %d ...]", args, wantAfter, wantBefore)
	}
}

func TestDayRange(t *testing.T) {
	cat := v10(t)
	b := NewBuilder(cat)

	day := time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC) // time-of-day ignored
	from, to := b.DayRange(day)

	if got := cat.CalendarTime(from); !got.Equal(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", got)
	}
	if to-from != 24*60*60 {
		t.Errorf("day span = %d seconds", to-from)
	}
}

func TestSubjectIDsRequiresText(t *testing.T) {
	b := NewBuilder(v10(t))
	if _, _, err := b.SubjectIDs(""); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestMessagesByKeyRequireIDs(t *testing.T) {
	b := NewBuilder(v10(t))
	if _, _, err := b.MessagesBySenders(nil, nil, 10); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("MessagesBySenders(nil): %v", err)
	}
	if _, _, err := b.MessagesBySubjects(nil, nil, 10); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("MessagesBySubjects(nil): %v", err)
	}
}

func TestJoinNamesComeFromCatalog(t *testing.T) {
	// A V7 catalog has no flag columns; the built query must not mention them.
	cat, err := schema.ForVersion("V7")
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(cat)

	sqlText, _, err := b.Messages(Search{Subject: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sqlText, "m.read") || strings.Contains(sqlText, "m.flagged") {
		t.Errorf("V7 query references flag columns:\n%s", sqlText)
	}
}
