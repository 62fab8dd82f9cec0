// Package session assembles the per-user application state shown after
// sign-in.
package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"meetings-backend/internal/ledger"
	"meetings-backend/internal/models"
)

type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Balances interface {
	Balance(ctx context.Context, userID string) (int, error)
}

type Reveals interface {
	List(ctx context.Context, userID string) ([]models.Reveal, error)
}

// State is everything the client needs to render a signed-in session.
type State struct {
	User    *models.User    `json:"user"`
	Balance int             `json:"balance"`
	Reveals []models.Reveal `json:"reveals"`
}

// Revealed indexes reveals by row key.
func (s *State) Revealed() map[string]models.Reveal {
	out := make(map[string]models.Reveal, len(s.Reveals))
	for _, r := range s.Reveals {
		out[r.RowKey] = r
	}
	return out
}

type Service struct {
	users    Users
	balances Balances
	reveals  Reveals
}

func NewService(users Users, balances Balances, reveals Reveals) *Service {
	return &Service{users: users, balances: balances, reveals: reveals}
}

// Snapshot loads the user, balance and reveals concurrently. A missing
// account is created with the starting grant.
func (s *Service) Snapshot(ctx context.Context, userID string) (*State, error) {
	if userID == "" {
		return nil, ledger.ErrNotAuthenticated
	}

	var state State
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.users.GetUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return ledger.ErrNotAuthenticated
		}
		state.User = user
		return nil
	})
	g.Go(func() error {
		balance, err := s.balances.Balance(gctx, userID)
		if err != nil {
			return err
		}
		state.Balance = balance
		return nil
	})
	g.Go(func() error {
		reveals, err := s.reveals.List(gctx, userID)
		if err != nil {
			return err
		}
		state.Reveals = reveals
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if state.Reveals == nil {
		state.Reveals = []models.Reveal{}
	}
	return &state, nil
}
