// Package maildir locates Apple Mail's on-disk layout: the versioned data
// directory under ~/Library/Mail, the Envelope Index metadata store inside
// it, and the per-account UUID directories.
package maildir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"howett.net/plist"

	"github.com/calder/mailindex/internal/schema"
)

// EnvelopeDBName is the metadata store's filename inside MailData.
const EnvelopeDBName = "Envelope Index"

// Layout is a resolved mail directory plus the schema version subdirectory
// in use.
type Layout struct {
	Root    string // e.g. ~/Library/Mail
	Version string // e.g. V10
}

// StorePath returns the path of the Envelope Index store.
func (l Layout) StorePath() string {
	return filepath.Join(l.Root, l.Version, "MailData", EnvelopeDBName)
}

// VersionDir returns the versioned data directory holding the per-account
// subdirectories.
func (l Layout) VersionDir() string {
	return filepath.Join(l.Root, l.Version)
}

// DetectVersion probes root for known version directories, newest first,
// and returns the first one that carries an Envelope Index store.
func DetectVersion(root string) (string, error) {
	versions := schema.Versions()
	for i := len(versions) - 1; i >= 0; i-- {
		l := Layout{Root: root, Version: versions[i]}
		if info, err := os.Stat(l.StorePath()); err == nil && !info.IsDir() {
			return versions[i], nil
		}
	}
	return "", fmt.Errorf("no Envelope Index found under %q for versions %s",
		root, strings.Join(versions, ", "))
}

// Account is one mail account directory under the versioned data directory.
// DisplayName and Addresses are filled from Accounts.plist when it is
// present and readable.
type Account struct {
	ID          string   `json:"id"` // directory name, normally a UUID
	Path        string   `json:"path"`
	DisplayName string   `json:"display_name,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
}

// accountsPlist mirrors the subset of MailData/Accounts.plist this system
// reads. The file can be XML or binary; howett.net/plist handles both.
type accountsPlist struct {
	MailAccounts []struct {
		UniqueID       string   `plist:"uniqueId"`
		AccountName    string   `plist:"AccountName"`
		DisplayName    string   `plist:"DisplayName"`
		EmailAddresses []string `plist:"EmailAddresses"`
	} `plist:"MailAccounts"`
}

// ListAccounts enumerates account directories under the versioned data
// directory, sorted by name. Hidden entries and the MailData directory are
// skipped. Metadata from Accounts.plist is merged in on a best-effort
// basis; a missing or malformed plist degrades to bare directory listings.
func ListAccounts(l Layout) ([]Account, error) {
	dir := l.VersionDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list accounts in %q: %w", dir, err)
	}

	meta := readAccountsPlist(filepath.Join(dir, "MailData", "Accounts.plist"))

	var accounts []Account
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || e.Name() == "MailData" {
			continue
		}
		acct := Account{ID: e.Name(), Path: filepath.Join(dir, e.Name())}
		if m, ok := meta[e.Name()]; ok {
			acct.DisplayName = m.DisplayName
			acct.Addresses = m.Addresses
		}
		accounts = append(accounts, acct)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

type accountMeta struct {
	DisplayName string
	Addresses   []string
}

func readAccountsPlist(path string) map[string]accountMeta {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var parsed accountsPlist
	if _, err := plist.Unmarshal(data, &parsed); err != nil {
		return nil
	}

	meta := make(map[string]accountMeta, len(parsed.MailAccounts))
	for _, a := range parsed.MailAccounts {
		if a.UniqueID == "" {
			continue
		}
		name := a.DisplayName
		if name == "" {
			name = a.AccountName
		}
		meta[a.UniqueID] = accountMeta{DisplayName: name, Addresses: a.EmailAddresses}
	}
	return meta
}

// IsUUID reports whether s matches the 8-4-4-4-12 hex shape of account
// directory names.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
