package user

import "time"

// User is a registered account. PasswordHash is a bcrypt digest and never
// leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
