package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/config"
	"github.com/mailmind/mailmind/internal/logging"
	"github.com/mailmind/mailmind/internal/users"
)

// Accounts resolves a signed-in identity to a local user.
type Accounts interface {
	FindOrCreate(ctx context.Context, email, name string) (*users.User, error)
}

// Credentials keeps the provider token that grants mailbox access.
type Credentials interface {
	Save(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) error
}

type Handler struct {
	authSvc     *Service
	accounts    Accounts
	provider    IdentityProvider
	credentials Credentials
	session     config.SessionConfig
	validate    *validator.Validate
}

func NewHandler(authSvc *Service, accounts Accounts, provider IdentityProvider, credentials Credentials, session config.SessionConfig) *Handler {
	return &Handler{
		authSvc:     authSvc,
		accounts:    accounts,
		provider:    provider,
		credentials: credentials,
		session:     session,
		validate:    validator.New(),
	}
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) refreshCookieName() string {
	return h.session.CookieName + "_refresh"
}

// GoogleLogin redirects the browser to Google's consent screen.
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.authSvc.NewState(r.Context())
	if err != nil {
		slog.Error("creating oauth state", logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback finishes sign-in, creating the account on first visit.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ok, err := h.authSvc.ConsumeState(r.Context(), q.Get("state"))
	if err != nil {
		slog.Error("consuming oauth state", logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !ok {
		api.HandleError(w, api.ErrInvalidState)
		return
	}

	if e := q.Get("error"); e != "" {
		api.HandleError(w, api.NewBadRequestError("sign-in cancelled: "+e))
		return
	}
	code := q.Get("code")
	if code == "" {
		api.HandleError(w, api.NewBadRequestError("missing authorization code"))
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrEmailNotVerified) {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		slog.Error("exchanging authorization code", logging.Err(err))
		api.HandleError(w, api.ErrUpstream)
		return
	}

	user, err := h.accounts.FindOrCreate(r.Context(), identity.Email, identity.Name)
	if err != nil {
		slog.Error("resolving account", logging.UserHash(identity.Email), logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if identity.Token != nil {
		if err := h.credentials.Save(r.Context(), user.ID, identity.Token); err != nil {
			slog.Error("saving google credential", logging.UserID(user.ID.String()), logging.Err(err))
			api.HandleError(w, api.ErrInternalServer)
			return
		}
	}

	tokens, err := h.authSvc.GenerateTokens(r.Context(), user.ID.String(), user.Email)
	if err != nil {
		slog.Error("generating tokens", logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("user signed in", logging.UserHash(user.Email), logging.Plan(string(user.PlanTier)))
	h.setSessionCookies(w, tokens)
	http.Redirect(w, r, h.session.PostLoginURL, http.StatusFound)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if c, err := r.Cookie(h.refreshCookieName()); err == nil && r.ContentLength == 0 {
		req.RefreshToken = c.Value
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tokens, err := h.authSvc.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Warn("refreshing tokens", logging.Err(err))
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	h.setSessionCookies(w, tokens)
	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(r.Context(), claims.UserID); err != nil {
		slog.Error("logging out", logging.UserID(claims.UserID), logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.clearSessionCookies(w)
	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, tokens *TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(tokens.ExpiresIn),
		HttpOnly: true,
		Secure:   h.session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.refreshCookieName(),
		Value:    tokens.RefreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   int(h.authSvc.JWT().RefreshExpiry().Seconds()),
		HttpOnly: true,
		Secure:   h.session.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for name, path := range map[string]string{h.session.CookieName: "/", h.refreshCookieName(): "/api/v1/auth"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.session.CookieSecure,
		})
	}
}
