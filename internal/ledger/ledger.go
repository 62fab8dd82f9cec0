// Package ledger owns user token balances. A balance starts at the grant
// given when the account is first seen and only ever goes down.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetings-backend/internal/models"
	"meetings-backend/internal/storage"
)

// StartingTokens is the default grant for a new account.
const StartingTokens = 100

// Store is the persistence the ledger needs.
type Store interface {
	EnsureAccount(ctx context.Context, userID string, startingTokens int) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
	Spend(ctx context.Context, userID string, cost int) (int, error)
}

// Recorder accepts audit entries without blocking.
type Recorder interface {
	Record(entry models.LedgerEntry) bool
}

type Result struct {
	Remaining int `json:"remaining"`
}

type Ledger struct {
	store          Store
	audit          Recorder
	startingTokens int
	logger         *zap.Logger
	now            func() time.Time
}

func New(store Store, audit Recorder, startingTokens int, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:          store,
		audit:          audit,
		startingTokens: startingTokens,
		logger:         logger.With(zap.String("component", "ledger")),
		now:            time.Now,
	}
}

// EnsureAccount grants the starting balance on first sight of a user and
// returns the current balance. Safe to call on every sign-in.
func (l *Ledger) EnsureAccount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrNotAuthenticated
	}
	tokens, err := l.store.EnsureAccount(ctx, userID, l.startingTokens)
	if err != nil {
		return 0, unavailable("ensure account", err)
	}
	return tokens, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrNotAuthenticated
	}
	tokens, err := l.store.Balance(ctx, userID)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return l.EnsureAccount(ctx, userID)
	}
	if err != nil {
		return 0, unavailable("read balance", err)
	}
	return tokens, nil
}

// Spend atomically deducts cost if the balance covers it. It is the
// spend-only entry point for callers that charge without revealing; no HTTP
// route reaches it, since reveals charge through reveal.Store.SpendAndReveal
// so the deduction and the reveal row commit together. On
// ErrInsufficientBalance the balance is unchanged. On *UnavailableError the
// outcome is unknown and the caller must re-read the balance rather than
// assume it is unchanged.
func (l *Ledger) Spend(ctx context.Context, userID string, cost int, meta models.LedgerMeta) (Result, error) {
	if userID == "" {
		l.logger.Error("spend without a user", zap.String("row_key", meta.RowKey))
		return Result{}, ErrNotAuthenticated
	}
	if cost <= 0 {
		return Result{}, ErrInvalidCost
	}

	remaining, err := l.store.Spend(ctx, userID, cost)
	if errors.Is(err, storage.ErrAccountNotFound) {
		if _, err = l.EnsureAccount(ctx, userID); err != nil {
			return Result{}, err
		}
		remaining, err = l.store.Spend(ctx, userID, cost)
	}
	if err != nil {
		return Result{}, Translate("spend", err)
	}

	l.Record(userID, cost, remaining, meta)
	return Result{Remaining: remaining}, nil
}

// Record queues an audit entry for a spend that already committed.
func (l *Ledger) Record(userID string, cost, remaining int, meta models.LedgerMeta) {
	if l.audit == nil {
		return
	}
	entry := models.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Cost:      cost,
		Remaining: remaining,
		Meta:      meta,
		CreatedAt: l.now().UTC(),
	}
	if !l.audit.Record(entry) {
		l.logger.Warn("audit entry dropped", zap.String("user_id", userID), zap.Int("cost", cost))
	}
}
