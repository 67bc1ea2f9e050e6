package domain

// Book represents a catalog entry. Books are immutable once created;
// there is no edit-book operation.
type Book struct {
	Record
	Title     string   `json:"title"`
	Published int      `json:"published"`
	AuthorID  string   `json:"author_id"`
	Genres    []string `json:"genres"`
}

// HasGenre reports whether the book is tagged with the given genre.
func (b *Book) HasGenre(genre string) bool {
	for _, g := range b.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// BookWithAuthor is a book with its author record resolved.
// Used for API responses and book.added event payloads so consumers
// never need a second lookup.
type BookWithAuthor struct {
	Book
	Author *Author `json:"author"`
}
