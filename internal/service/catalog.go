package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacksapp/stacks-server/internal/domain"
	domainerrors "github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/events"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
	"github.com/stacksapp/stacks-server/internal/validation"
)

// unauthorizedMessage is returned for every mutation attempted without an
// authenticated user.
const unauthorizedMessage = "you do not have permission to perform this request"

// CatalogService handles catalog queries and mutations.
type CatalogService struct {
	store     *store.Store
	bus       *events.Bus
	validator *validation.Validator
	logger    *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store *store.Store, bus *events.Bus, validator *validation.Validator, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:     store,
		bus:       bus,
		validator: validator,
		logger:    logger,
	}
}

// AddBookRequest contains a new catalog entry.
type AddBookRequest struct {
	Title     string   `json:"title" validate:"required,min=2,max=500"`
	Author    string   `json:"author" validate:"required,min=2,max=200"`
	Published int      `json:"published" validate:"gte=0"`
	Genres    []string `json:"genres" validate:"required,min=1,dive,required,max=100"`
}

// EditAuthorRequest sets an author's birth year.
type EditAuthorRequest struct {
	Name      string `json:"name" validate:"required"`
	SetBornTo int    `json:"set_born_to" validate:"gte=0"`
}

// BookFilter narrows AllBooks results. Zero value matches everything.
type BookFilter struct {
	AuthorName string
	Genre      string
}

// AddBook persists a new book, creating its author on first reference, and
// announces it on the event bus. Requires an authenticated caller.
//
// The event is published only after the book has been persisted; a crash
// between the two leaves a persisted but unannounced book.
func (s *CatalogService) AddBook(ctx context.Context, currentUser *domain.User, req AddBookRequest) (*domain.BookWithAuthor, error) {
	if currentUser == nil {
		return nil, domainerrors.Unauthorized(unauthorizedMessage)
	}

	if err := s.validator.Validate(req); err != nil {
		// Validation failures echo the offending arguments back to the client.
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return nil, domainErr.WithDetails(map[string]any{
				"invalid_args": req,
				"fields":       domainErr.Details,
			})
		}
		return nil, err
	}

	author, created, err := s.store.Authors.Upsert(ctx, req.Author)
	if err != nil {
		return nil, fmt.Errorf("upsert author: %w", err)
	}
	if created {
		s.logger.Info("author created",
			slog.String("author_id", author.ID),
			slog.String("name", author.Name))
	}

	bookID, err := id.Generate("book")
	if err != nil {
		return nil, fmt.Errorf("generate book ID: %w", err)
	}

	book := &domain.Book{
		Title:     req.Title,
		Published: req.Published,
		AuthorID:  author.ID,
		Genres:    req.Genres,
	}
	book.ID = bookID
	book.InitTimestamps()

	if err := s.store.Books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	count, err := s.store.Books.CountByAuthor(ctx, author.ID)
	if err != nil {
		return nil, fmt.Errorf("count author books: %w", err)
	}
	author.BookCount = count

	result := &domain.BookWithAuthor{
		Book:   *book,
		Author: author,
	}

	s.bus.Publish(events.TopicBookAdded, result)

	s.logger.Info("book added",
		slog.String("book_id", book.ID),
		slog.String("title", book.Title),
		slog.String("author_id", author.ID),
		slog.String("user_id", currentUser.ID))
	return result, nil
}

// EditAuthor updates an author's birth year. Requires an authenticated caller.
func (s *CatalogService) EditAuthor(ctx context.Context, currentUser *domain.User, req EditAuthorRequest) (*domain.Author, error) {
	if currentUser == nil {
		return nil, domainerrors.Unauthorized(unauthorizedMessage)
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	author, err := s.store.Authors.UpdateBorn(ctx, req.Name, req.SetBornTo)
	if err != nil {
		if errors.Is(err, store.ErrAuthorNotFound) {
			return nil, domainerrors.ValidationWithArgs("author not found", req)
		}
		return nil, fmt.Errorf("update author: %w", err)
	}

	count, err := s.store.Books.CountByAuthor(ctx, author.ID)
	if err != nil {
		return nil, fmt.Errorf("count author books: %w", err)
	}
	author.BookCount = count

	s.logger.Info("author updated",
		slog.String("author_id", author.ID),
		slog.String("name", author.Name))
	return author, nil
}

// AllBooks returns all books with resolved authors, optionally filtered by
// author name and/or genre.
func (s *CatalogService) AllBooks(ctx context.Context, filter BookFilter) ([]*domain.BookWithAuthor, error) {
	storeFilter := store.BookFilter{Genre: filter.Genre}

	// An author-name filter that matches no author matches no books.
	if filter.AuthorName != "" {
		author, err := s.store.Authors.GetByName(ctx, filter.AuthorName)
		if err != nil {
			if errors.Is(err, store.ErrAuthorNotFound) {
				return []*domain.BookWithAuthor{}, nil
			}
			return nil, fmt.Errorf("lookup author: %w", err)
		}
		storeFilter.AuthorID = author.ID
	}

	books, err := s.store.Books.List(ctx, storeFilter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	// Resolve authors once per distinct ID.
	authorsByID := make(map[string]*domain.Author)
	results := make([]*domain.BookWithAuthor, 0, len(books))
	for _, book := range books {
		author, ok := authorsByID[book.AuthorID]
		if !ok {
			author, err = s.store.Authors.Get(ctx, book.AuthorID)
			if err != nil {
				return nil, fmt.Errorf("resolve author %s: %w", book.AuthorID, err)
			}
			authorsByID[book.AuthorID] = author
		}
		results = append(results, &domain.BookWithAuthor{Book: *book, Author: author})
	}
	return results, nil
}

// AllAuthors returns all authors with their book counts computed live.
func (s *CatalogService) AllAuthors(ctx context.Context) ([]*domain.Author, error) {
	authors, err := s.store.Authors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}

	results := make([]*domain.Author, 0, len(authors))
	for _, author := range authors {
		count, err := s.store.Books.CountByAuthor(ctx, author.ID)
		if err != nil {
			return nil, fmt.Errorf("count author books: %w", err)
		}
		author.BookCount = count
		results = append(results, author)
	}
	return results, nil
}

// AllGenres returns the deduplicated, sorted list of genres across all books.
func (s *CatalogService) AllGenres(ctx context.Context) ([]string, error) {
	genres, err := s.store.Books.Genres(ctx)
	if err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	return genres, nil
}

// BookCount returns the total number of books.
func (s *CatalogService) BookCount(ctx context.Context) (int, error) {
	return s.store.Books.Count(ctx)
}

// AuthorCount returns the total number of authors.
func (s *CatalogService) AuthorCount(ctx context.Context) (int, error) {
	return s.store.Authors.Count(ctx)
}
