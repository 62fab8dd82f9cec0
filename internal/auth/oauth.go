package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"meetings-backend/internal/config"
	"meetings-backend/internal/models"
)

const (
	stateCookie       = "meetings_oauth_state"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var errEmailNotVerified = errors.New("provider email not verified")

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// GoogleOAuth runs the authorization-code flow against Google and signs the
// user in with the verified email.
type GoogleOAuth struct {
	conf        *oauth2.Config
	userInfoURL string
	appURL      string
	svc         *Service
	logger      *zap.Logger
}

func NewGoogleOAuth(cfg config.AuthConfig, appURL string, svc *Service, logger *zap.Logger) *GoogleOAuth {
	return &GoogleOAuth{
		conf: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
		appURL:      appURL,
		svc:         svc,
		logger:      logger.With(zap.String("component", "oauth")),
	}
}

// Start redirects to Google's consent page
// @Summary Google sign-in
// @Tags auth
// @Success 302
// @Router /auth/oauth/google [get]
func (g *GoogleOAuth) Start(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/oauth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, g.conf.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the Google flow
// @Summary Google sign-in callback
// @Description Exchanges the code, signs the user in and redirects to the app with the token in the fragment
// @Tags auth
// @Param code query string true "Authorization code"
// @Param state query string true "State"
// @Success 302
// @Failure 400 {object} map[string]string "Invalid state"
// @Router /auth/oauth/google/callback [get]
func (g *GoogleOAuth) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		respondError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/oauth", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "Google login failed")
		return
	}

	info, err := g.exchange(r.Context(), code)
	if err != nil {
		g.logger.Warn("google exchange failed", zap.Error(err))
		respondError(w, http.StatusUnauthorized, "Google login failed")
		return
	}

	session, err := g.svc.SignInExternal(r.Context(), models.ProviderGoogle, info.Email)
	if err != nil {
		g.logger.Error("google sign-in failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Google login failed")
		return
	}

	fragment := url.Values{"token": {session.Token}}
	http.Redirect(w, r, g.appURL+"/dashboard#"+fragment.Encode(), http.StatusFound)
}

func (g *GoogleOAuth) exchange(ctx context.Context, code string) (*googleUserInfo, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" || !info.EmailVerified {
		return nil, errEmailNotVerified
	}
	return &info, nil
}
