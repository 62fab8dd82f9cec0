package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"meetings-backend/internal/dbx"
	"meetings-backend/internal/models"
)

const revealColumns = `
	user_id, row_key, title, company,
	COALESCE(email, '') AS email,
	COALESCE(scheduling_links, '{}') AS scheduling_links,
	updated_at
`

// RevealCharge describes one paid reveal: who pays, for which field of which
// row, and the value to store once paid.
type RevealCharge struct {
	UserID  string
	RowKey  string
	Title   string
	Company string
	Kind    models.RevealKind
	Email   string
	Links   []string
	Cost    int
}

type RevealChargeResult struct {
	Reveal    *models.Reveal
	Remaining int
	Charged   bool
}

func (s *Storage) GetReveal(ctx context.Context, userID, rowKey string) (*models.Reveal, error) {
	return getReveal(ctx, s.db, userID, rowKey, false)
}

func getReveal(ctx context.Context, q sqlx.QueryerContext, userID, rowKey string, forUpdate bool) (*models.Reveal, error) {
	query := `SELECT ` + revealColumns + ` FROM reveals WHERE user_id = $1 AND row_key = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var reveal models.Reveal
	if err := sqlx.GetContext(ctx, q, &reveal, query, userID, rowKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &reveal, nil
}

// ListReveals returns every reveal owned by the user, newest first.
func (s *Storage) ListReveals(ctx context.Context, userID string) ([]models.Reveal, error) {
	query := `SELECT ` + revealColumns + ` FROM reveals WHERE user_id = $1 ORDER BY updated_at DESC, row_key`

	reveals := []models.Reveal{}
	if err := s.db.SelectContext(ctx, &reveals, query, userID); err != nil {
		return nil, err
	}
	return reveals, nil
}

// UpsertReveal merges the non-empty fields of reveal into the stored
// document. Fields left empty keep their stored value.
func (s *Storage) UpsertReveal(ctx context.Context, reveal models.Reveal) (*models.Reveal, error) {
	return upsertReveal(ctx, s.db, reveal)
}

func upsertReveal(ctx context.Context, q sqlx.QueryerContext, reveal models.Reveal) (*models.Reveal, error) {
	query := `
		INSERT INTO reveals (user_id, row_key, title, company, email, scheduling_links, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, row_key) DO UPDATE SET
			title = EXCLUDED.title,
			company = EXCLUDED.company,
			email = COALESCE(EXCLUDED.email, reveals.email),
			scheduling_links = COALESCE(EXCLUDED.scheduling_links, reveals.scheduling_links),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + revealColumns

	var links interface{}
	if len(reveal.SchedulingLinks) > 0 {
		links = pq.Array([]string(reveal.SchedulingLinks))
	}

	var stored models.Reveal
	if err := sqlx.GetContext(ctx, q, &stored, query,
		reveal.UserID, reveal.RowKey, reveal.Title, reveal.Company,
		nullIfEmpty(reveal.Email), links,
	); err != nil {
		return nil, err
	}
	return &stored, nil
}

// SpendAndReveal charges the account and stores the revealed field in one
// transaction. If the field is already revealed nothing is charged and the
// stored reveal is returned. ErrInsufficientTokens leaves both tables
// untouched.
func (s *Storage) SpendAndReveal(ctx context.Context, charge RevealCharge) (*RevealChargeResult, error) {
	var result *RevealChargeResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		var tokens int
		err := tx.QueryRowContext(ctx, `SELECT tokens FROM accounts WHERE user_id = $1 FOR UPDATE`, charge.UserID).Scan(&tokens)
		if err == sql.ErrNoRows {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		existing, err := getReveal(ctx, tx, charge.UserID, charge.RowKey, true)
		if err != nil {
			return fmt.Errorf("load reveal: %w", err)
		}
		if existing.Has(charge.Kind) {
			result = &RevealChargeResult{Reveal: existing, Remaining: tokens}
			return nil
		}

		if tokens < charge.Cost {
			return ErrInsufficientTokens
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `
			UPDATE accounts
			SET tokens = tokens - $2, updated_at = NOW()
			WHERE user_id = $1
			RETURNING tokens
		`, charge.UserID, charge.Cost).Scan(&remaining); err != nil {
			return fmt.Errorf("debit account: %w", err)
		}

		reveal := models.Reveal{
			UserID:  charge.UserID,
			RowKey:  charge.RowKey,
			Title:   charge.Title,
			Company: charge.Company,
		}
		switch charge.Kind {
		case models.RevealEmail:
			reveal.Email = charge.Email
		case models.RevealScheduling:
			reveal.SchedulingLinks = charge.Links
		}

		stored, err := upsertReveal(ctx, tx, reveal)
		if err != nil {
			return fmt.Errorf("store reveal: %w", err)
		}

		result = &RevealChargeResult{Reveal: stored, Remaining: remaining, Charged: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
