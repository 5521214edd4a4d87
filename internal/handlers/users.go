package handlers

import (
	"net/http"

	"github.com/alagamento-br/apiserver/internal/authz"
	"github.com/alagamento-br/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// UserHandler provides admin-only account management.
type UserHandler struct {
	userService *services.UserService
	logger      zerolog.Logger
}

func NewUserHandler(userService *services.UserService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, guard *Guard, logger zerolog.Logger) {
	handler := NewUserHandler(userService, logger)

	r.With(guard.Require(authz.ListUsers)).Get("/", handler.List)
	r.Route("/{userID}", func(r chi.Router) {
		r.With(guard.Require(authz.PromoteUser)).Put("/promote", handler.Promote)
		r.With(guard.Require(authz.DeleteUser)).Delete("/", handler.Delete)
	})
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Promote(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.userService.Promote(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to promote user")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "user promoted to admin"})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.userService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "user deleted"})
}
