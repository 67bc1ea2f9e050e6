package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
)

// upsertRetries bounds retries of the author upsert under Badger
// transaction conflicts. Two concurrent upserts of the same new name
// conflict on the name index; the loser retries and observes the winner.
const upsertRetries = 5

// AuthorStore manages author records.
// Authors are keyed by ID with a unique name index; all creation goes
// through Upsert so a name maps to exactly one record.
type AuthorStore struct {
	store *Store
}

func authorNameKey(name string) []byte {
	return []byte(authorPrefix + "idx:name:" + name)
}

func authorKey(authorID string) []byte {
	return []byte(authorPrefix + authorID)
}

// Upsert atomically fetches the author with the given name, creating it
// with default fields if absent. The check and the create happen in one
// transaction, so concurrent upserts of the same new name can never
// produce two records. Returns the author and whether it was created.
func (a *AuthorStore) Upsert(ctx context.Context, name string) (*domain.Author, bool, error) {
	var lastErr error

	for range upsertRetries {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		author, created, err := a.upsertOnce(name)
		if err == nil {
			return author, created, nil
		}
		if !isConflict(err) {
			return nil, false, err
		}
		lastErr = err
	}

	return nil, false, fmt.Errorf("author upsert did not settle after %d attempts: %w", upsertRetries, lastErr)
}

// upsertOnce runs a single upsert transaction.
func (a *AuthorStore) upsertOnce(name string) (*domain.Author, bool, error) {
	var (
		author  domain.Author
		created bool
	)

	err := a.store.db.Update(func(txn *badger.Txn) error {
		created = false

		// Existing name wins.
		item, err := txn.Get(authorNameKey(name))
		if err == nil {
			var authorID string
			if err := item.Value(func(val []byte) error {
				authorID = string(val)
				return nil
			}); err != nil {
				return err
			}

			record, err := txn.Get(authorKey(authorID))
			if err != nil {
				return fmt.Errorf("author index points at missing record %s: %w", authorID, err)
			}
			return decodeItem(record, &author)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check author name index: %w", err)
		}

		// Absent: create with default fields.
		authorID, err := id.Generate("author")
		if err != nil {
			return fmt.Errorf("generate author ID: %w", err)
		}

		author = domain.Author{Name: name}
		author.ID = authorID
		author.InitTimestamps()

		data, err := json.Marshal(&author)
		if err != nil {
			return fmt.Errorf("failed to marshal author: %w", err)
		}

		if err := txn.Set(authorKey(authorID), data); err != nil {
			return fmt.Errorf("failed to set author: %w", err)
		}
		if err := txn.Set(authorNameKey(name), []byte(authorID)); err != nil {
			return fmt.Errorf("failed to set author name index: %w", err)
		}

		created = true
		return nil
	})

	if err != nil {
		return nil, false, err
	}
	return &author, created, nil
}

// Get retrieves an author by ID.
func (a *AuthorStore) Get(ctx context.Context, authorID string) (*domain.Author, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var author domain.Author
	err := a.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(authorKey(authorID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAuthorNotFound
		}
		if err != nil {
			return err
		}
		return decodeItem(item, &author)
	})

	if err != nil {
		return nil, err
	}
	return &author, nil
}

// GetByName retrieves an author by unique name.
func (a *AuthorStore) GetByName(ctx context.Context, name string) (*domain.Author, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var author domain.Author
	err := a.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(authorNameKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAuthorNotFound
		}
		if err != nil {
			return err
		}

		var authorID string
		if err := item.Value(func(val []byte) error {
			authorID = string(val)
			return nil
		}); err != nil {
			return err
		}

		record, err := txn.Get(authorKey(authorID))
		if err != nil {
			return fmt.Errorf("author index points at missing record %s: %w", authorID, err)
		}
		return decodeItem(record, &author)
	})

	if err != nil {
		return nil, err
	}
	return &author, nil
}

// UpdateBorn sets the birth year of the author with the given name.
// Returns ErrAuthorNotFound if no author has that name.
func (a *AuthorStore) UpdateBorn(ctx context.Context, name string, born int) (*domain.Author, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var author domain.Author
	err := a.store.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(authorNameKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAuthorNotFound
		}
		if err != nil {
			return err
		}

		var authorID string
		if err := item.Value(func(val []byte) error {
			authorID = string(val)
			return nil
		}); err != nil {
			return err
		}

		record, err := txn.Get(authorKey(authorID))
		if err != nil {
			return fmt.Errorf("author index points at missing record %s: %w", authorID, err)
		}
		if err := decodeItem(record, &author); err != nil {
			return err
		}

		author.Born = &born
		author.Touch()

		data, err := json.Marshal(&author)
		if err != nil {
			return fmt.Errorf("failed to marshal author: %w", err)
		}
		return txn.Set(authorKey(authorID), data)
	})

	if err != nil {
		return nil, err
	}
	return &author, nil
}

// Count returns the number of author records.
func (a *AuthorStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a.store.countPrimaryKeys(authorPrefix)
}

// List returns all authors.
func (a *AuthorStore) List(ctx context.Context) ([]*domain.Author, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var authors []*domain.Author
	idxPrefix := authorPrefix + "idx:"

	err := a.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(authorPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(authorPrefix)); it.ValidForPrefix([]byte(authorPrefix)); it.Next() {
			key := string(it.Item().Key())
			if len(key) >= len(idxPrefix) && key[:len(idxPrefix)] == idxPrefix {
				continue
			}

			var author domain.Author
			if err := decodeItem(it.Item(), &author); err != nil {
				return err
			}
			authors = append(authors, &author)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return authors, nil
}
