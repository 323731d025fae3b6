package schema

import (
	"errors"
	"testing"
	"time"
)

func TestForVersion(t *testing.T) {
	for _, tag := range Versions() {
		t.Run(tag, func(t *testing.T) {
			c, err := ForVersion(tag)
			if err != nil {
				t.Fatalf("ForVersion(%q): %v", tag, err)
			}
			if c.Version != tag {
				t.Errorf("version = %q, want %q", c.Version, tag)
			}
			if c.MessagesTable == "" || c.SubjectsTable == "" || c.AddressesTable == "" {
				t.Error("core table names must be populated")
			}
		})
	}
}

func TestForVersionUnknown(t *testing.T) {
	_, err := ForVersion("V99")
	if !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestEpochOffsetPerVersion(t *testing.T) {
	tests := []struct {
		tag    string
		offset int64
	}{
		{"V7", 0},
		{"V8", 0},
		{"V9", AppleEpochOffset},
		{"V10", AppleEpochOffset},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			c, err := ForVersion(tt.tag)
			if err != nil {
				t.Fatal(err)
			}
			if c.DateEpochOffset != tt.offset {
				t.Errorf("offset = %d, want %d", c.DateEpochOffset, tt.offset)
			}
		})
	}
}

// TestDateRoundTrip sweeps calendar dates across the supported range and
// verifies StoreTime and CalendarTime invert each other for every version.
// Getting the epoch wrong does not error, it silently shifts results by 31
// years, so this is checked exhaustively.
func TestDateRoundTrip(t *testing.T) {
	start := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2040, 12, 31, 0, 0, 0, 0, time.UTC)

	for _, tag := range Versions() {
		c, err := ForVersion(tag)
		if err != nil {
			t.Fatal(err)
		}
		t.Run(tag, func(t *testing.T) {
			for d := start; !d.After(end); d = d.AddDate(0, 3, 17) {
				raw := c.StoreTime(d)
				back := c.CalendarTime(raw)
				if !back.Equal(d) {
					t.Fatalf("round trip failed for %v: raw=%d back=%v", d, raw, back)
				}
				if again := c.StoreTime(back); again != raw {
					t.Fatalf("reverse round trip failed for raw=%d: got %d", raw, again)
				}
			}
		})
	}
}

func TestAppleEpochAnchor(t *testing.T) {
	c, err := ForVersion("V10")
	if err != nil {
		t.Fatal(err)
	}
	// Apple absolute time zero is 2001-01-01 00:00:00 UTC.
	if got := c.CalendarTime(0); !got.Equal(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CalendarTime(0) = %v", got)
	}
}
