package handlers

import (
	"errors"
	"net/http"

	"github.com/alagamento-br/apiserver/internal/authz"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/alagamento-br/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AuthHandler provides registration, login and current user endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	logger      zerolog.Logger
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService, logger: logger}
}

// AuthRouter registers auth routes on the given router. rateLimit, when
// set, wraps the credential endpoints.
func AuthRouter(
	r chi.Router,
	authService *services.AuthService,
	userService *services.UserService,
	guard *Guard,
	rateLimit func(http.Handler) http.Handler,
	logger zerolog.Logger,
) {
	handler := NewAuthHandler(authService, userService, logger)

	r.Group(func(r chi.Router) {
		if rateLimit != nil {
			r.Use(rateLimit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})
	r.With(guard.Require(authz.CurrentUser)).Get("/me", handler.Me)
}

// Register creates a new user account and returns a token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to authenticate")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Me returns the account of the authenticated principal. A token whose
// account was deleted is treated as unauthorized.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), principal.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeServiceError(w, r, h.logger, err, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
