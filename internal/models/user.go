package models

import "time"

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User is an authenticated identity.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Provider     string    `json:"provider" db:"provider"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Account holds a user's token balance. Tokens never drop below zero.
type Account struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Tokens    int       `json:"tokens" db:"tokens"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
