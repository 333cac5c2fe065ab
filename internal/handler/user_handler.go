package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/service"
)

// UserHandler exposes account management for the authenticated user.
type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Get("/{userID}", h.GetUser)
		r.Put("/me", h.UpdateMe)
		r.Delete("/me", h.DeleteMe)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	users, err := h.userService.List(r.Context(), limit)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to list users")
		return
	}

	resp := successResponse(users, "")
	resp.Meta = &Meta{Total: len(users), PageSize: len(users)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid user ID")
		return
	}

	user, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to get user")
		return
	}

	// Only the owner sees their own email address.
	if callerID, ok := UserIDFromContext(r.Context()); !ok || callerID != userID {
		user.Email = ""
	}

	respondWithJSON(w, http.StatusOK, successResponse(user, ""))
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	var req service.UserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.userService.Update(r.Context(), userID, req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to update user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(user, "User updated successfully"))
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	if err := h.userService.Delete(r.Context(), userID); err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to delete user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "User deleted successfully"))
}
