package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// BookStore manages book records.
// Books carry multi-value indexes by author and genre:
//
//	book:idx:author:<authorID>:<bookID>       -> bookID
//	book:idx:genre:<encoded-genre>:<bookID>   -> bookID
//
// so filtered listing and live author book counts are prefix scans.
type BookStore struct {
	store *Store
}

// BookFilter narrows List results. Zero value matches all books.
type BookFilter struct {
	AuthorID string
	Genre    string
}

func bookKey(bookID string) []byte {
	return []byte(bookPrefix + bookID)
}

func bookAuthorIdxKey(authorID, bookID string) []byte {
	return []byte(bookPrefix + "idx:author:" + authorID + ":" + bookID)
}

func bookAuthorIdxPrefix(authorID string) []byte {
	return []byte(bookPrefix + "idx:author:" + authorID + ":")
}

// encodeGenre percent-encodes a genre for use in index keys. Genres are
// free text, so a literal ':' must not collide with the key separator.
func encodeGenre(genre string) string {
	return url.QueryEscape(genre)
}

func bookGenreIdxKey(genre, bookID string) []byte {
	return []byte(bookPrefix + "idx:genre:" + encodeGenre(genre) + ":" + bookID)
}

func bookGenreIdxPrefix(genre string) []byte {
	return []byte(bookPrefix + "idx:genre:" + encodeGenre(genre) + ":")
}

// Create persists a book and its author/genre index entries in one transaction.
func (b *BookStore) Create(ctx context.Context, book *domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("failed to marshal book: %w", err)
	}

	return b.store.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(bookKey(book.ID))
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := txn.Set(bookKey(book.ID), data); err != nil {
			return fmt.Errorf("failed to set book: %w", err)
		}

		if err := txn.Set(bookAuthorIdxKey(book.AuthorID, book.ID), []byte(book.ID)); err != nil {
			return fmt.Errorf("failed to set author index: %w", err)
		}
		for _, genre := range book.Genres {
			if err := txn.Set(bookGenreIdxKey(genre, book.ID), []byte(book.ID)); err != nil {
				return fmt.Errorf("failed to set genre index: %w", err)
			}
		}

		return nil
	})
}

// Get retrieves a book by ID.
func (b *BookStore) Get(ctx context.Context, bookID string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var book domain.Book
	err := b.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bookKey(bookID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		return decodeItem(item, &book)
	})

	if err != nil {
		return nil, err
	}
	return &book, nil
}

// List returns all books matching the filter.
// Storage failures are returned, never coerced to an empty result.
func (b *BookStore) List(ctx context.Context, filter BookFilter) ([]*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// With an author filter the author index is the narrower scan;
	// a genre filter on top is applied in memory.
	if filter.AuthorID != "" {
		books, err := b.listByIndex(bookAuthorIdxPrefix(filter.AuthorID))
		if err != nil {
			return nil, err
		}
		if filter.Genre == "" {
			return books, nil
		}
		filtered := make([]*domain.Book, 0, len(books))
		for _, book := range books {
			if book.HasGenre(filter.Genre) {
				filtered = append(filtered, book)
			}
		}
		return filtered, nil
	}

	if filter.Genre != "" {
		return b.listByIndex(bookGenreIdxPrefix(filter.Genre))
	}

	return b.listAll()
}

// listByIndex resolves every book referenced under an index prefix.
func (b *BookStore) listByIndex(prefix []byte) ([]*domain.Book, error) {
	var books []*domain.Book

	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var bookID string
			if err := it.Item().Value(func(val []byte) error {
				bookID = string(val)
				return nil
			}); err != nil {
				return err
			}

			record, err := txn.Get(bookKey(bookID))
			if err != nil {
				return fmt.Errorf("book index points at missing record %s: %w", bookID, err)
			}

			var book domain.Book
			if err := decodeItem(record, &book); err != nil {
				return err
			}
			books = append(books, &book)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return books, nil
}

// listAll returns every book record.
func (b *BookStore) listAll() ([]*domain.Book, error) {
	var books []*domain.Book
	idxPrefix := bookPrefix + "idx:"

	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bookPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(bookPrefix)); it.ValidForPrefix([]byte(bookPrefix)); it.Next() {
			key := string(it.Item().Key())
			if len(key) >= len(idxPrefix) && key[:len(idxPrefix)] == idxPrefix {
				continue
			}

			var book domain.Book
			if err := decodeItem(it.Item(), &book); err != nil {
				return err
			}
			books = append(books, &book)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return books, nil
}

// Count returns the number of book records.
func (b *BookStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.store.countPrimaryKeys(bookPrefix)
}

// CountByAuthor returns the live count of books referencing the author.
// This is the source of truth for Author.BookCount; no stored counter
// exists to drift out of sync.
func (b *BookStore) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	prefix := bookAuthorIdxPrefix(authorID)
	count := 0

	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})

	if err != nil {
		return 0, err
	}
	return count, nil
}

// Genres returns the deduplicated, sorted set of genres across all books.
func (b *BookStore) Genres(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	prefix := []byte(bookPrefix + "idx:genre:")

	// The genre index keys already carry every genre; scanning them
	// avoids decoding book records.
	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := key[len(prefix):]
			// Key shape: <encoded-genre>:<bookID>. The encoded genre
			// cannot contain ':', so the first colon is the separator.
			if i := strings.IndexByte(rest, ':'); i >= 0 {
				genre, err := url.QueryUnescape(rest[:i])
				if err != nil {
					return fmt.Errorf("failed to decode genre key %q: %w", key, err)
				}
				seen[genre] = struct{}{}
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	genres := make([]string, 0, len(seen))
	for genre := range seen {
		genres = append(genres, genre)
	}
	sort.Strings(genres)
	return genres, nil
}
