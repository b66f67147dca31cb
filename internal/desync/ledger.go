// Package desync records index mutations that failed after their store
// commit succeeded, so a repair job can re-apply them later.
//
// The ledger holds at most one entry per (kind, id): a later failure for the
// same entity replaces an earlier one, because repair always re-reads the
// current row from the store instead of replaying the failed mutation.
package desync

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

const keyPrefix = "desync:"

// Op names the index mutation that failed.
type Op string

const (
	OpUpsert Op = "upsert"
	OpRemove Op = "remove"
)

// Entry is a flagged index mutation.
type Entry struct {
	Kind      domain.Kind `json:"kind"`
	ID        int64       `json:"id"`
	Op        Op          `json:"op"`
	Rev       int64       `json:"rev"`
	Error     string      `json:"error"`
	FlaggedAt time.Time   `json:"flagged_at"`
	Attempts  int         `json:"attempts"`
}

// Ledger is a Badger-backed set of flagged entries.
type Ledger struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the ledger at path. An empty path keeps it in memory.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // A flag must survive a crash right after it is written
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open desync ledger: %w", err)
	}

	logger.Info("desync ledger opened", "path", path, "in_memory", path == "")
	return &Ledger{db: db, logger: logger}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func entryKey(kind domain.Kind, id int64) []byte {
	return []byte(keyPrefix + string(kind) + ":" + strconv.FormatInt(id, 10))
}

// Flag records a failed mutation, replacing any older entry for the same
// entity and carrying its attempt count forward.
func (l *Ledger) Flag(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.FlaggedAt.IsZero() {
		e.FlaggedAt = time.Now()
	}
	key := entryKey(e.Kind, e.ID)

	return l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var prev Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &prev) }); err == nil {
				if prev.Rev > e.Rev && e.Rev != 0 {
					// A newer failure is already flagged.
					return nil
				}
				e.Attempts = max(e.Attempts, prev.Attempts)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Clear removes the entry for (kind, id) if it was flagged at or before rev.
// A rev of 0 clears unconditionally.
func (l *Ledger) Clear(ctx context.Context, kind domain.Kind, id, rev int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := entryKey(kind, id)

	return l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rev != 0 {
			var e Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err == nil && e.Rev > rev {
				return nil
			}
		}
		return txn.Delete(key)
	})
}

// List returns every flagged entry, ordered by key.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	prefix := []byte(keyPrefix)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				l.logger.Warn("skipping unreadable desync entry",
					"key", strings.TrimPrefix(string(it.Item().Key()), keyPrefix),
					"error", err,
				)
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of flagged entries.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
