package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With(zap.String("component", "auth-http"))}
}

type signupRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a password account
// @Summary Sign up
// @Description Creates an account with email and password, grants the starting tokens, returns a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param body body signupRequest true "Sign-up form"
// @Success 201 {object} Session
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Email already in use"
// @Failure 429 {object} map[string]string "Rate limited"
// @Router /auth/signup [post]
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.svc.SignUp(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		h.fail(w, err, "Signup failed")
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// Login authenticates a user and returns a JWT token
// @Summary User login
// @Description Authenticates user with email and password, returns JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Login credentials"
// @Success 200 {object} Session
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 429 {object} map[string]string "Rate limited"
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	session, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err, "Login failed")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// Logout revokes the current token
// @Summary User logout
// @Description Revokes the bearer token and notifies open event streams
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]bool "Success response"
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w)
		return
	}
	if err := h.svc.SignOut(r.Context(), claims); err != nil {
		h.logger.Error("sign out failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "Logout failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	msg, ok := UserMessage(err)
	if !ok {
		h.logger.Error("auth request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
		return
	}
	respondError(w, statusFor(err), msg)
}

func statusFor(err error) int {
	switch err {
	case ErrInvalidCredentials:
		return http.StatusUnauthorized
	case ErrEmailInUse:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}
