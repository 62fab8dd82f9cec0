package storage

import (
	"context"
	"database/sql"
	"strings"

	"meetings-backend/internal/models"
)

const userColumns = `id, email, password_hash, provider, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Provider,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new identity. Emails are stored lower-cased and are
// unique across providers.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, provider)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := s.db.QueryRowContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.Provider).
		Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// UpsertExternalUser returns the user registered under email, creating it for
// the given provider when absent. An existing password account is reused.
func (s *Storage) UpsertExternalUser(ctx context.Context, id, email, provider string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, provider)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + userColumns

	return scanUser(s.db.QueryRowContext(ctx, query, id, strings.ToLower(strings.TrimSpace(email)), provider))
}

func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}
