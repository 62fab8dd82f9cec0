package storage

import (
	"context"
	"database/sql"

	"meetings-backend/internal/models"
)

// EnsureAccount creates the account with the starting grant if it does not
// exist and returns the stored balance. Existing balances are never touched.
func (s *Storage) EnsureAccount(ctx context.Context, userID string, startingTokens int) (int, error) {
	query := `
		WITH ins AS (
			INSERT INTO accounts (user_id, tokens)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING tokens
		)
		SELECT tokens FROM ins
		UNION ALL
		SELECT tokens FROM accounts WHERE user_id = $1
		LIMIT 1
	`

	var tokens int
	if err := s.db.QueryRowContext(ctx, query, userID, startingTokens).Scan(&tokens); err != nil {
		return 0, err
	}
	return tokens, nil
}

func (s *Storage) Balance(ctx context.Context, userID string) (int, error) {
	var tokens int
	err := s.db.QueryRowContext(ctx, `SELECT tokens FROM accounts WHERE user_id = $1`, userID).Scan(&tokens)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	return tokens, err
}

// Spend decrements the balance by cost in a single conditional update. The
// balance is left unchanged when it is lower than cost.
func (s *Storage) Spend(ctx context.Context, userID string, cost int) (int, error) {
	query := `
		UPDATE accounts
		SET tokens = tokens - $2, updated_at = NOW()
		WHERE user_id = $1 AND tokens >= $2
		RETURNING tokens
	`

	var remaining int
	err := s.db.QueryRowContext(ctx, query, userID, cost).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrAccountNotFound
	}
	return 0, ErrInsufficientTokens
}

// AppendLedgerEntry writes one audit record to token_logs. Replays of the
// same entry id are ignored.
func (s *Storage) AppendLedgerEntry(ctx context.Context, entry models.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_logs (id, user_id, cost, remaining, kind, row_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.UserID, entry.Cost, entry.Remaining, string(entry.Meta.Kind), entry.Meta.RowKey, entry.CreatedAt)
	return err
}
