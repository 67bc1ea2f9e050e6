// Package store implements the Badger-backed document storage for the catalog.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// Key prefixes. Secondary index keys live under "<prefix>idx:<name>:".
const (
	userPrefix   = "user:"
	authorPrefix = "author:"
	bookPrefix   = "book:"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Users uses the generic entity layer with a unique username index.
	Users *Entity[domain.User]

	// Authors and Books need upsert and multi-value index semantics the
	// generic layer doesn't cover, so they get dedicated implementations.
	Authors *AuthorStore
	Books   *BookStore
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	store.Users = NewEntity[domain.User](store, userPrefix).
		WithIndex("username", func(u *domain.User) []string {
			return []string{u.Username}
		})
	store.Authors = &AuthorStore{store: store}
	store.Books = &BookStore{store: store}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// decodeItem unmarshals a Badger item's value into dest.
func decodeItem(item *badger.Item, dest any) error {
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

// countPrimaryKeys counts primary (non-index) keys under a prefix.
func (s *Store) countPrimaryKeys(prefix string) (int, error) {
	count := 0
	idxPrefix := prefix + "idx:"

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			key := string(it.Item().Key())
			if len(key) >= len(idxPrefix) && key[:len(idxPrefix)] == idxPrefix {
				continue
			}
			count++
		}
		return nil
	})

	if err != nil {
		return 0, err
	}
	return count, nil
}

// isConflict reports whether err is a Badger transaction conflict.
// Conflicting write transactions are safe to retry.
func isConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}
