// Package reveal charges users for gated directory fields and records what
// they have paid to see.
package reveal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"meetings-backend/internal/directory"
	"meetings-backend/internal/ledger"
	"meetings-backend/internal/models"
	"meetings-backend/internal/storage"
)

var (
	ErrPending         = errors.New("reveal already in progress")
	ErrNothingToReveal = errors.New("row has no value to reveal")
	ErrRowNotFound     = errors.New("row not found")
	ErrUnknownKind     = errors.New("unknown reveal kind")
)

// State is the per-field lifecycle as seen by one user.
type State string

const (
	StateHidden   State = "hidden"
	StatePending  State = "pending"
	StateRevealed State = "revealed"
)

type Rows interface {
	Row(key string) (directory.Row, bool)
}

type Store interface {
	GetReveal(ctx context.Context, userID, rowKey string) (*models.Reveal, error)
	ListReveals(ctx context.Context, userID string) ([]models.Reveal, error)
	SpendAndReveal(ctx context.Context, charge storage.RevealCharge) (*storage.RevealChargeResult, error)
}

// Accounts is the ledger surface the workflow uses.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID string) (int, error)
	Record(userID string, cost, remaining int, meta models.LedgerMeta)
}

type Notifier interface {
	Publish(userID string, event models.Event)
}

// Costs is the token price of each kind.
type Costs map[models.RevealKind]int

// Outcome is the result of a reveal request.
type Outcome struct {
	Reveal    *models.Reveal `json:"reveal"`
	Charged   bool           `json:"charged"`
	Cost      int            `json:"cost"`
	Remaining int            `json:"remaining"`
	Message   string         `json:"message"`
}

type Workflow struct {
	rows     Rows
	store    Store
	accounts Accounts
	notifier Notifier
	costs    Costs
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(rows Rows, store Store, accounts Accounts, notifier Notifier, costs Costs, timeout time.Duration, logger *zap.Logger) *Workflow {
	return &Workflow{
		rows:     rows,
		store:    store,
		accounts: accounts,
		notifier: notifier,
		costs:    costs,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "reveal")),
		inflight: make(map[string]struct{}),
	}
}

// Cost returns the configured price of kind.
func (w *Workflow) Cost(kind models.RevealKind) int {
	return w.costs[kind]
}

// Reveal pays for and stores one gated field. A field already revealed is
// returned without charge. Charging and storing happen in one transaction.
func (w *Workflow) Reveal(ctx context.Context, userID, rowKey string, kind models.RevealKind) (*Outcome, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	row, ok := w.rows.Row(rowKey)
	if !ok {
		return nil, ErrRowNotFound
	}

	charge := storage.RevealCharge{
		UserID:  userID,
		RowKey:  rowKey,
		Title:   row.Get(directory.ColTitle),
		Company: row.Get(directory.ColCompany),
		Kind:    kind,
		Cost:    w.costs[kind],
	}
	switch kind {
	case models.RevealEmail:
		charge.Email = row.Email()
		if charge.Email == "" {
			return nil, ErrNothingToReveal
		}
	case models.RevealScheduling:
		charge.Links = row.SchedulingLinks()
		if len(charge.Links) == 0 {
			return nil, ErrNothingToReveal
		}
	}

	key := inflightKey(userID, rowKey, kind)
	if !w.acquire(key) {
		return nil, ErrPending
	}
	defer w.release(key)

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res, err := w.store.SpendAndReveal(ctx, charge)
	if errors.Is(err, storage.ErrAccountNotFound) {
		if _, err = w.accounts.EnsureAccount(ctx, userID); err != nil {
			return nil, err
		}
		res, err = w.store.SpendAndReveal(ctx, charge)
	}
	if err != nil {
		if !errors.Is(err, storage.ErrInsufficientTokens) {
			w.logger.Error("reveal failed",
				zap.String("user_id", userID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
		return nil, ledger.Translate("reveal", err)
	}

	normalize(res.Reveal)
	out := &Outcome{Reveal: res.Reveal, Charged: res.Charged, Remaining: res.Remaining}
	if res.Charged {
		out.Cost = charge.Cost
		out.Message = fmt.Sprintf("-%d tokens. Remaining: %d", charge.Cost, res.Remaining)

		w.accounts.Record(userID, charge.Cost, res.Remaining, models.LedgerMeta{Kind: kind, RowKey: rowKey})
		if w.notifier != nil {
			w.notifier.Publish(userID, models.BalanceEvent(res.Remaining))
			w.notifier.Publish(userID, models.Event{Type: models.EventReveal, Reveal: res.Reveal})
		}
		w.logger.Info("field revealed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Int("remaining", res.Remaining),
		)
	}
	return out, nil
}

// List returns every reveal the user owns, with scheduling links
// normalized.
func (w *Workflow) List(ctx context.Context, userID string) ([]models.Reveal, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}
	reveals, err := w.store.ListReveals(ctx, userID)
	if err != nil {
		return nil, ledger.Translate("list reveals", err)
	}
	for i := range reveals {
		normalize(&reveals[i])
	}
	return reveals, nil
}

// State reports where one field of one row stands for userID.
func (w *Workflow) State(ctx context.Context, userID, rowKey string, kind models.RevealKind) (State, error) {
	if w.isPending(inflightKey(userID, rowKey, kind)) {
		return StatePending, nil
	}
	rev, err := w.store.GetReveal(ctx, userID, rowKey)
	if err != nil {
		return StateHidden, ledger.Translate("read reveal", err)
	}
	if rev.Has(kind) {
		return StateRevealed, nil
	}
	return StateHidden, nil
}

// Pending reports whether a reveal for the field is in flight.
func (w *Workflow) Pending(userID, rowKey string, kind models.RevealKind) bool {
	return w.isPending(inflightKey(userID, rowKey, kind))
}

func inflightKey(userID, rowKey string, kind models.RevealKind) string {
	return userID + "\x00" + rowKey + "\x00" + string(kind)
}

func (w *Workflow) acquire(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[key]; busy {
		return false
	}
	w.inflight[key] = struct{}{}
	return true
}

func (w *Workflow) release(key string) {
	w.mu.Lock()
	delete(w.inflight, key)
	w.mu.Unlock()
}

func (w *Workflow) isPending(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, busy := w.inflight[key]
	return busy
}

func normalize(r *models.Reveal) {
	if r == nil || len(r.SchedulingLinks) == 0 {
		return
	}
	r.SchedulingLinks = directory.NormalizeLinks(r.SchedulingLinks)
}
