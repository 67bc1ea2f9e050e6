package domain

// Author represents a book author in the catalog.
// Name uniquely identifies an author; creation goes through the store's
// upsert so two books naming the same author share one record.
type Author struct {
	Record
	Name string `json:"name"`
	Born *int   `json:"born,omitempty"`

	// BookCount is derived at read time from the live count of books
	// referencing this author. Never persisted.
	BookCount int `json:"book_count"`
}
