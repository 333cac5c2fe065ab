package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/service"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// AuthHandler exposes registration, login and the current-user endpoint.
type AuthHandler struct {
	authService *service.AuthService
	userService *service.UserService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, userService *service.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		logger:      logger,
	}
}

// RegisterRoutes mounts the public auth routes. Protected routes are mounted
// separately by the router so they sit behind the auth middleware.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
}

// RegisterProtectedRoutes mounts routes that require a valid token.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", h.Me)
	r.Post("/auth/logout", h.Logout)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Registration failed")
		return
	}

	user.PasswordHash = ""
	respondWithJSON(w, http.StatusCreated, successResponse(user, "User registered successfully"))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	req.SourceID = clientIP(r)
	req.Endpoint = r.URL.Path

	result, err := h.authService.Login(r.Context(), req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Login failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(result, "Login successful"))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	user, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to load user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(user, ""))
}

// Logout is stateless: tokens expire on their own, the endpoint exists so
// clients have a uniform place to end a session and the event is logged.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := UserIDFromContext(r.Context()); ok {
		h.logger.Info("user logged out", util.String("user_id", userID.String()))
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}
