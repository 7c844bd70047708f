package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"dropgate/api/internal/httputil"
	"dropgate/api/internal/metrics"
	"dropgate/api/internal/ratelimit"
	"dropgate/api/internal/store"
	"dropgate/api/internal/token"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const (
	invalidRegisterMessage    = "Invalid registration data."
	invalidLoginMessage       = "Email and password are required and must be valid."
	invalidCredentialsMessage = "Invalid email or password."
	duplicateEmailMessage     = "A user with this email already exists."
	loginThrottledMessage     = "Too many login attempts. Try again in a few minutes."
	registerThrottledMessage  = "Too many registration attempts. Try again later."
	serverErrorMessage        = "Internal server error"
	missingSecretMessage      = "Server configuration error."
	bodyTooLargeMessage       = "Request body too large"
)

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginResponse struct {
	Token string     `json:"token"`
	User  publicUser `json:"user"`
}

type publicUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Handler serves the registration and login flows behind their stricter,
// route-scoped limiters.
type Handler struct {
	store    store.Credentials
	issuer   *token.Issuer
	validate *validator.Validate

	LoginLimiter    *ratelimit.RouteLimiter
	RegisterLimiter *ratelimit.RouteLimiter
}

// NewHandler wires the auth subsystem. issuer may be nil when the signing
// secret is absent; login then degrades to a 500 per request (startup
// validation normally refuses to get this far).
func NewHandler(st store.Credentials, issuer *token.Issuer, login, register *ratelimit.RouteLimiter) *Handler {
	if login == nil {
		login = ratelimit.NewRouteLimiter(10, 10*time.Minute, loginThrottledMessage)
	}
	if register == nil {
		register = ratelimit.NewRouteLimiter(5, 60*time.Minute, registerThrottledMessage)
	}
	return &Handler{
		store:           st,
		issuer:          issuer,
		validate:        newValidator(),
		LoginLimiter:    login,
		RegisterLimiter: register,
	}
}

// Routes mounts the auth endpoints.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/auth/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
}

// decodeJSON reads the request body into dst, mapping an oversized body to
// 413 and anything else malformed to a 400 with the route's message.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, badRequestMessage string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, bodyTooLargeMessage)
		} else {
			httputil.WriteError(w, http.StatusBadRequest, badRequestMessage)
		}
		return false
	}
	return true
}

// Registration: Received → Validated → DuplicateChecked → Hashed → Stored →
// Confirmed, aborted at the first failing gate. The attempt is charged up
// front and refunded only on confirmation, so successful registrations do
// not consume the route quota.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	logger := httputil.GetLogger(r.Context())
	key := httputil.ClientIP(r)
	now := time.Now()

	d := h.RegisterLimiter.Take(key)
	httputil.SetRateHeaders(w, d, now)
	if !d.Allowed {
		metrics.AuthOutcome.WithLabelValues("register", "throttled").Inc()
		httputil.WriteThrottled(w, d, now, h.RegisterLimiter.Message)
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req, invalidRegisterMessage) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		metrics.AuthOutcome.WithLabelValues("register", "invalid").Inc()
		httputil.WriteError(w, http.StatusBadRequest, invalidRegisterMessage)
		return
	}

	// Fast-path duplicate check. The unique index behind Create is the
	// source of truth; this only spares a bcrypt run in the common case.
	if _, err := h.store.FindByEmail(r.Context(), req.Email); err == nil {
		metrics.AuthOutcome.WithLabelValues("register", "conflict").Inc()
		httputil.WriteError(w, http.StatusConflict, duplicateEmailMessage)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("credential lookup failed")
		httputil.WriteError(w, http.StatusInternalServerError, serverErrorMessage)
		return
	}

	// Intentionally expensive; runs outside any counter lock.
	hash, err := HashPassword(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("password hashing failed")
		httputil.WriteError(w, http.StatusInternalServerError, serverErrorMessage)
		return
	}

	u := &store.User{Name: strings.TrimSpace(req.Name), Email: req.Email, PasswordHash: hash}
	if err := h.store.Create(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			metrics.AuthOutcome.WithLabelValues("register", "conflict").Inc()
			httputil.WriteError(w, http.StatusConflict, duplicateEmailMessage)
			return
		}
		logger.Error().Err(err).Msg("credential insert failed")
		httputil.WriteError(w, http.StatusInternalServerError, serverErrorMessage)
		return
	}

	h.RegisterLimiter.Refund(key)
	metrics.AuthOutcome.WithLabelValues("register", "success").Inc()
	logger.Info().Uint("user_id", u.ID).Msg("user registered")
	httputil.WriteJSON(w, http.StatusOK, registerResponse{Success: true, Message: "User registered."})
}

// Login: Received → Validated → SecretChecked → Looked Up → Matched →
// Issued. Unknown email and wrong password produce byte-identical 401s so
// the response never discloses whether an account exists.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := httputil.GetLogger(r.Context())
	key := httputil.ClientIP(r)
	now := time.Now()

	d := h.LoginLimiter.Take(key)
	httputil.SetRateHeaders(w, d, now)
	if !d.Allowed {
		metrics.AuthOutcome.WithLabelValues("login", "throttled").Inc()
		httputil.WriteThrottled(w, d, now, h.LoginLimiter.Message)
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req, invalidLoginMessage) {
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		metrics.AuthOutcome.WithLabelValues("login", "invalid").Inc()
		httputil.WriteError(w, http.StatusBadRequest, invalidLoginMessage)
		return
	}

	// A missing secret must never produce an unsigned token.
	if h.issuer == nil {
		logger.Error().Msg("signing secret not configured")
		httputil.WriteError(w, http.StatusInternalServerError, missingSecretMessage)
		return
	}

	u, err := h.store.FindByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthOutcome.WithLabelValues("login", "rejected").Inc()
		httputil.WriteError(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("credential lookup failed")
		httputil.WriteError(w, http.StatusInternalServerError, serverErrorMessage)
		return
	}

	if err := ComparePasswords(u.PasswordHash, req.Password); err != nil {
		metrics.AuthOutcome.WithLabelValues("login", "rejected").Inc()
		httputil.WriteError(w, http.StatusUnauthorized, invalidCredentialsMessage)
		return
	}

	tok, err := h.issuer.Sign(u.ID, u.Name, u.Email)
	if err != nil {
		logger.Error().Err(err).Msg("token signing failed")
		httputil.WriteError(w, http.StatusInternalServerError, serverErrorMessage)
		return
	}

	h.LoginLimiter.Refund(key)
	metrics.AuthOutcome.WithLabelValues("login", "success").Inc()
	metrics.TokensIssued.Inc()
	logger.Info().Uint("user_id", u.ID).Msg("user logged in")
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token: tok,
		User:  publicUser{ID: u.ID, Name: u.Name, Email: u.Email},
	})
}
