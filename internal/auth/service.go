package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"meetings-backend/internal/models"
	"meetings-backend/internal/storage"
)

const minPasswordLength = 6

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrWeakPassword       = errors.New("password too short")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// userMessages are the texts shown to users for each sign-in failure.
var userMessages = map[error]string{
	ErrInvalidEmail:       "Invalid email address",
	ErrPasswordMismatch:   "Passwords do not match",
	ErrWeakPassword:       "Password should be at least 6 characters",
	ErrEmailInUse:         "Email already in use",
	ErrInvalidCredentials: "Invalid username/email or password",
}

// UserMessage returns the user-facing text for err and whether err is a
// known client error.
func UserMessage(err error) (string, bool) {
	for sentinel, msg := range userMessages {
		if errors.Is(err, sentinel) {
			return msg, true
		}
	}
	return "", false
}

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertExternalUser(ctx context.Context, id, email, provider string) (*models.User, error)
}

// Accounts grants the starting balance on first sign-in.
type Accounts interface {
	EnsureAccount(ctx context.Context, userID string) (int, error)
}

type Revoker interface {
	RevokeToken(jti string, ttl time.Duration) error
}

// Notifier pushes events to a user's live connections.
type Notifier interface {
	Publish(userID string, event models.Event)
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
	Balance   int          `json:"balance"`
}

type Service struct {
	users      UserStore
	accounts   Accounts
	issuer     *Issuer
	revoker    Revoker
	notifier   Notifier
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

func NewService(users UserStore, accounts Accounts, issuer *Issuer, revoker Revoker, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		users:      users,
		accounts:   accounts,
		issuer:     issuer,
		revoker:    revoker,
		notifier:   notifier,
		logger:     logger.With(zap.String("component", "auth")),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

func (s *Service) Issuer() *Issuer {
	return s.issuer
}

func (s *Service) SignUp(ctx context.Context, email, password, confirm string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     models.ProviderPassword,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return s.openSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, user)
}

// SignInExternal signs in a user whose email an external provider verified,
// creating the identity on first sight.
func (s *Service) SignInExternal(ctx context.Context, provider, email string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.users.UpsertExternalUser(ctx, uuid.NewString(), email, provider)
	if err != nil {
		return nil, fmt.Errorf("upsert %s user: %w", provider, err)
	}
	return s.openSession(ctx, user)
}

// SignOut revokes the token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, claims *Claims) error {
	if err := s.revoker.RevokeToken(claims.ID, claims.TTL(s.now())); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.notifier != nil {
		s.notifier.Publish(claims.Subject, models.Event{Type: models.EventSignedOut})
	}
	s.logger.Info("user signed out", zap.String("user_id", claims.Subject))
	return nil
}

// CurrentUser loads the user behind a validated token.
func (s *Service) CurrentUser(ctx context.Context, claims *Claims) (*models.User, error) {
	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) openSession(ctx context.Context, user *models.User) (*Session, error) {
	balance, err := s.accounts.EnsureAccount(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	token, claims, err := s.issuer.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &Session{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
		Balance:   balance,
	}, nil
}

// normalizeEmail accepts a bare addr-spec only. mail.ParseAddress also takes
// display-name and angle-bracket forms, which must not be stored as an email.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return addr.Address, nil
}
