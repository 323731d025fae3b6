package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/calder/mailindex/internal/query"
	"github.com/calder/mailindex/internal/schema"
	"github.com/calder/mailindex/internal/store"
)

// acquireStore opens a read-only connection to the configured Envelope
// Index and pairs it with an executor for the resolved schema version.
// The caller owns the connection and must close it.
func acquireStore(ctx context.Context) (*store.Conn, *query.Executor, error) {
	cat, err := schema.ForVersion(cfg.Mail.Version)
	if err != nil {
		return nil, nil, err
	}

	conn, err := store.NewProvider(cfg.StorePath()).Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, query.NewExecutor(cat, cfg.ResultLimit), nil
}

// parseDayFlag parses an optional YYYY-MM-DD flag value.
func parseDayFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %q is not a YYYY-MM-DD date", name, value)
	}
	return &t, nil
}
