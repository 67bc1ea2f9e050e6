package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
)

func createTestBook(t *testing.T, store *Store, title, authorID string, published int, genres ...string) *domain.Book {
	t.Helper()

	book := &domain.Book{
		Title:     title,
		Published: published,
		AuthorID:  authorID,
		Genres:    genres,
	}
	book.ID = id.MustGenerate("book")
	book.InitTimestamps()

	require.NoError(t, store.Books.Create(context.Background(), book))
	return book
}

func TestBookCreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	author, _, err := store.Authors.Upsert(ctx, "Herbert")
	require.NoError(t, err)

	book := createTestBook(t, store, "Dune", author.ID, 1965, "scifi")

	fetched, err := store.Books.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", fetched.Title)
	assert.Equal(t, 1965, fetched.Published)
	assert.Equal(t, author.ID, fetched.AuthorID)
	assert.Equal(t, []string{"scifi"}, fetched.Genres)
}

func TestBookGet_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.Books.Get(context.Background(), "book-missing")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestBookList_Filters(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	herbert, _, err := store.Authors.Upsert(ctx, "Herbert")
	require.NoError(t, err)
	leguin, _, err := store.Authors.Upsert(ctx, "Le Guin")
	require.NoError(t, err)

	createTestBook(t, store, "Dune", herbert.ID, 1965, "scifi")
	createTestBook(t, store, "Dune Messiah", herbert.ID, 1969, "scifi")
	createTestBook(t, store, "The Dispossessed", leguin.ID, 1974, "scifi", "utopia")
	createTestBook(t, store, "Earthsea", leguin.ID, 1968, "fantasy")

	// No filter: everything.
	all, err := store.Books.List(ctx, BookFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// Author filter.
	byAuthor, err := store.Books.List(ctx, BookFilter{AuthorID: herbert.ID})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	// Genre filter.
	byGenre, err := store.Books.List(ctx, BookFilter{Genre: "fantasy"})
	require.NoError(t, err)
	require.Len(t, byGenre, 1)
	assert.Equal(t, "Earthsea", byGenre[0].Title)

	// Both filters.
	both, err := store.Books.List(ctx, BookFilter{AuthorID: leguin.ID, Genre: "utopia"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "The Dispossessed", both[0].Title)

	// Filter with no matches is empty, not an error.
	none, err := store.Books.List(ctx, BookFilter{Genre: "romance"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBookCounts(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	herbert, _, err := store.Authors.Upsert(ctx, "Herbert")
	require.NoError(t, err)
	leguin, _, err := store.Authors.Upsert(ctx, "Le Guin")
	require.NoError(t, err)

	createTestBook(t, store, "Dune", herbert.ID, 1965, "scifi")
	createTestBook(t, store, "Dune Messiah", herbert.ID, 1969, "scifi")
	createTestBook(t, store, "Earthsea", leguin.ID, 1968, "fantasy")

	total, err := store.Books.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	herbertCount, err := store.Books.CountByAuthor(ctx, herbert.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, herbertCount)

	leguinCount, err := store.Books.CountByAuthor(ctx, leguin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, leguinCount)

	noneCount, err := store.Books.CountByAuthor(ctx, "author-missing")
	require.NoError(t, err)
	assert.Equal(t, 0, noneCount)
}

func TestBookGenres_Deduplicated(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	author, _, err := store.Authors.Upsert(ctx, "Herbert")
	require.NoError(t, err)

	createTestBook(t, store, "Dune", author.ID, 1965, "scifi", "classic")
	createTestBook(t, store, "Dune Messiah", author.ID, 1969, "scifi")

	genres, err := store.Books.Genres(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"classic", "scifi"}, genres)
}

func TestBookGenres_Empty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	genres, err := store.Books.Genres(context.Background())
	require.NoError(t, err)
	assert.Empty(t, genres)
}

func TestBookList_GenreWithSeparator(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	author, _, err := store.Authors.Upsert(ctx, "Gibson")
	require.NoError(t, err)

	book := createTestBook(t, store, "Neuromancer", author.ID, 1984, "sci:fi")

	// A genre containing ':' must not leak into other prefix scans.
	books, err := store.Books.List(ctx, BookFilter{Genre: "sci"})
	require.NoError(t, err)
	assert.Empty(t, books)

	books, err = store.Books.List(ctx, BookFilter{Genre: "sci:fi"})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, book.ID, books[0].ID)

	genres, err := store.Books.Genres(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sci:fi"}, genres)
}
