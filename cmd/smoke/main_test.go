package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meetings-backend/internal/hub"
	"meetings-backend/internal/models"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeServer(t *testing.T, charge bool) *httptest.Server {
	t.Helper()
	events := hub.NewHub(zap.NewNop())
	user := &models.User{ID: "u1", Email: "smoke@example.com"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]int{"registered": 3, "capacity": 1000, "spots_left": 997})
	})
	mux.HandleFunc("POST /auth/signup", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"token": "tok", "balance": 100})
	})
	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = events.Serve(w, r, user)
	})
	mux.HandleFunc("GET /api/directory", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"total": 2, "rows": []map[string]any{
			{"key": "a", "has_email": false},
			{"key": "b", "has_email": true},
		}})
	})
	mux.HandleFunc("POST /api/reveals", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RowKey string `json:"row_key"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RowKey != "b" || !charge {
			writeJSON(w, map[string]any{"charged": false, "remaining": 100})
			return
		}
		events.Publish(user.ID, models.BalanceEvent(95))
		writeJSON(w, map[string]any{"charged": true, "remaining": 95, "message": "-5 tokens. Remaining: 95"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		events.Publish(user.ID, models.Event{Type: models.EventSignedOut})
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		events.Close()
		srv.Close()
	})
	return srv
}

func TestRun(t *testing.T) {
	srv := newFakeServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, srv.URL, srv.Client(), &out))
	assert.Contains(t, out.String(), "-5 tokens. Remaining: 95")
	assert.Contains(t, out.String(), "Smoke run complete")
}

func TestRun_UnchargedRevealFails(t *testing.T) {
	srv := newFakeServer(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, srv.URL, srv.Client(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not charged")
}
