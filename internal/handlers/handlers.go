package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"meetings-backend/docs"
	"meetings-backend/internal/auth"
	"meetings-backend/internal/config"
	"meetings-backend/internal/directory"
	"meetings-backend/internal/ledger"
	"meetings-backend/internal/models"
	"meetings-backend/internal/reveal"
	"meetings-backend/internal/session"
)

const (
	statsKey          = "meetings:stats:registered"
	statsQueryTimeout = 5 * time.Second
)

type Directory interface {
	Search(query string, page int) directory.Page
	Len() int
}

type Reveals interface {
	Reveal(ctx context.Context, userID, rowKey string, kind models.RevealKind) (*reveal.Outcome, error)
	List(ctx context.Context, userID string) ([]models.Reveal, error)
	Pending(userID, rowKey string, kind models.RevealKind) bool
}

type Sessions interface {
	Snapshot(ctx context.Context, userID string) (*session.State, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// Events streams a user's events over a websocket.
type Events interface {
	Serve(w http.ResponseWriter, r *http.Request, user *models.User) error
}

type StatsCache interface {
	GetInt(key string) (int, bool, error)
	SetInt(key string, value int, ttl time.Duration) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups what the API handlers need.
type Deps struct {
	Directory Directory
	Reveals   Reveals
	Sessions  Sessions
	Users     Users
	Events    Events
	Stats     StatsCache
	// Probes are checked by /healthz, keyed by name.
	Probes    map[string]Pinger
	Site      config.SiteConfig
	StaticDir string
	Logger    *zap.Logger
}

type Handler struct {
	deps   Deps
	stats  singleflight.Group
	logger *zap.Logger
}

func New(deps Deps) *Handler {
	return &Handler{deps: deps, logger: deps.Logger.With(zap.String("component", "api"))}
}

// RegisterRoutes mounts the API. Routes under /api except /api/stats
// require authn.
func (h *Handler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/healthz", h.Health)
	r.Get("/api/stats", h.GetStats)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/api/session", h.GetSession)
		r.Get("/api/directory", h.GetDirectory)
		r.Get("/api/reveals", h.ListReveals)
		r.Post("/api/reveals", h.CreateReveal)
		r.Get("/api/events", h.Events)
	})

	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.SwaggerJSON)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	if h.deps.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(h.deps.StaticDir)))
	}
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, p := range h.deps.Probes {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
			status[name] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	status["directory_rows"] = strconv.Itoa(h.deps.Directory.Len())
	respondJSON(w, code, status)
}

type statsResponse struct {
	Registered int `json:"registered"`
	Capacity   int `json:"capacity"`
	SpotsLeft  int `json:"spots_left"`
}

// GetStats godoc
// @Summary Registered users and spots left
// @Tags site
// @Produce json
// @Success 200 {object} statsResponse
// @Router /api/stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.registeredUsers(r.Context())
	if err != nil {
		h.logger.Error("count users", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "Stats unavailable")
		return
	}
	capacity := h.deps.Site.Capacity
	respondJSON(w, http.StatusOK, statsResponse{
		Registered: count,
		Capacity:   capacity,
		SpotsLeft:  max(0, capacity-count),
	})
}

func (h *Handler) registeredUsers(ctx context.Context) (int, error) {
	if h.deps.Stats != nil {
		if n, ok, err := h.deps.Stats.GetInt(statsKey); err == nil && ok {
			return n, nil
		} else if err != nil {
			h.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	// The shared call serves every waiter, so it must not die with whichever
	// request happened to start it.
	v, err, _ := h.stats.Do(statsKey, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsQueryTimeout)
		defer cancel()
		n, err := h.deps.Users.CountUsers(cctx)
		if err != nil {
			return 0, err
		}
		if h.deps.Stats != nil {
			if err := h.deps.Stats.SetInt(statsKey, n, h.deps.Site.StatsTTL); err != nil {
				h.logger.Warn("stats cache write failed", zap.Error(err))
			}
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// GetSession godoc
// @Summary Current user, balance and reveals
// @Tags session
// @Produce json
// @Security Bearer
// @Success 200 {object} session.State
// @Failure 401 {object} map[string]string
// @Router /api/session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	state, err := h.deps.Sessions.Snapshot(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// directoryRow is a public row merged with what the caller has revealed.
type directoryRow struct {
	directory.PublicRow
	Email           string       `json:"email,omitempty"`
	SchedulingLinks []string     `json:"scheduling_links,omitempty"`
	EmailState      reveal.State `json:"email_state"`
	SchedulingState reveal.State `json:"scheduling_state"`
}

type directoryResponse struct {
	directory.Page
	Rows []directoryRow `json:"rows"`
}

// GetDirectory godoc
// @Summary Search the directory
// @Tags directory
// @Produce json
// @Security Bearer
// @Param q query string false "Search text"
// @Param page query int false "1-based page"
// @Success 200 {object} directoryResponse
// @Router /api/directory [get]
func (h *Handler) GetDirectory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	result := h.deps.Directory.Search(r.URL.Query().Get("q"), page)

	reveals, err := h.deps.Reveals.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	revealed := make(map[string]models.Reveal, len(reveals))
	for _, rev := range reveals {
		revealed[rev.RowKey] = rev
	}

	rows := make([]directoryRow, 0, len(result.Rows))
	for _, row := range result.Rows {
		out := directoryRow{PublicRow: row.Public()}
		rev, ok := revealed[out.Key]
		out.EmailState = h.fieldState(userID, out.Key, models.RevealEmail, ok && rev.Has(models.RevealEmail))
		out.SchedulingState = h.fieldState(userID, out.Key, models.RevealScheduling, ok && rev.Has(models.RevealScheduling))
		if out.EmailState == reveal.StateRevealed {
			out.Email = rev.Email
		}
		if out.SchedulingState == reveal.StateRevealed {
			out.SchedulingLinks = rev.SchedulingLinks
		}
		rows = append(rows, out)
	}

	respondJSON(w, http.StatusOK, directoryResponse{Page: result, Rows: rows})
}

func (h *Handler) fieldState(userID, rowKey string, kind models.RevealKind, revealed bool) reveal.State {
	switch {
	case revealed:
		return reveal.StateRevealed
	case h.deps.Reveals.Pending(userID, rowKey, kind):
		return reveal.StatePending
	}
	return reveal.StateHidden
}

// ListReveals godoc
// @Summary Revealed contacts
// @Tags reveals
// @Produce json
// @Security Bearer
// @Success 200 {array} models.Reveal
// @Router /api/reveals [get]
func (h *Handler) ListReveals(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	reveals, err := h.deps.Reveals.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reveals)
}

type revealRequest struct {
	RowKey string            `json:"row_key"`
	Kind   models.RevealKind `json:"kind"`
}

// CreateReveal godoc
// @Summary Reveal a gated field
// @Description Charges tokens and stores the revealed field. A field already revealed is returned free.
// @Tags reveals
// @Accept json
// @Produce json
// @Security Bearer
// @Param body body revealRequest true "Row and field"
// @Success 200 {object} reveal.Outcome
// @Failure 402 {object} map[string]string "Insufficient tokens"
// @Failure 409 {object} map[string]string "Reveal in progress"
// @Failure 503 {object} map[string]string "Ledger unavailable"
// @Router /api/reveals [post]
func (h *Handler) CreateReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RowKey == "" {
		respondError(w, http.StatusBadRequest, "row_key is required")
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	out, err := h.deps.Reveals.Reveal(r.Context(), userID, req.RowKey, req.Kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// Events godoc
// @Summary Websocket event stream
// @Tags session
// @Param token query string false "JWT when headers cannot be set"
// @Router /api/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.deps.Users.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, ledger.Translate("load user", err))
		return
	}
	if user == nil {
		h.writeError(w, ledger.ErrNotAuthenticated)
		return
	}
	if err := h.deps.Events.Serve(w, r, user); err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var unavailable *ledger.UnavailableError
	switch {
	case errors.Is(err, ledger.ErrNotAuthenticated):
		respondError(w, http.StatusUnauthorized, "Sign in to continue")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		respondError(w, http.StatusPaymentRequired, "Not enough tokens")
	case errors.Is(err, reveal.ErrPending):
		respondError(w, http.StatusConflict, "Reveal already in progress")
	case errors.Is(err, reveal.ErrNothingToReveal):
		respondError(w, http.StatusUnprocessableEntity, "Nothing to reveal")
	case errors.Is(err, reveal.ErrRowNotFound):
		respondError(w, http.StatusNotFound, "Row not found")
	case errors.Is(err, reveal.ErrUnknownKind):
		respondError(w, http.StatusBadRequest, "Unknown reveal kind")
	case errors.As(err, &unavailable):
		h.logger.Error("ledger unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "Service unavailable: "+unavailable.Reason)
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
