package domain

// User represents an account that can authenticate and add catalog entries.
type User struct {
	Record
	Username      string `json:"username"`
	FavoriteGenre string `json:"favorite_genre"`
	PasswordHash  string `json:"password_hash,omitempty"` // Stored hashed, filtered from API responses
}

// Public returns a copy safe for API responses, with the password hash stripped.
func (u *User) Public() *User {
	pub := *u
	pub.PasswordHash = ""
	return &pub
}
