package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/service"
)

// OrderHandler exposes order placement and tracking. All order routes
// require authentication and orders are only visible to their owner.
type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListMyOrders)
		r.Get("/{orderID}", h.GetOrder)
		r.Patch("/{orderID}/status", h.UpdateOrderStatus)
	})
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	var req service.OrderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	order, err := h.orderService.Create(r.Context(), userID, req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(order, "Order created successfully"))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid order ID")
		return
	}

	order, err := h.orderService.Get(r.Context(), orderID)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to get order")
		return
	}

	// Another user's order reads as not found, not forbidden.
	if order.UserID != userID {
		respondWithError(w, r,http.StatusNotFound, errors.New("order not found"), "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(order, ""))
}

func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.orderService.ListByUser(r.Context(), userID, limit)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to list orders")
		return
	}

	resp := successResponse(orders, "")
	resp.Meta = &Meta{Total: len(orders), PageSize: len(orders)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid order ID")
		return
	}

	current, err := h.orderService.Get(r.Context(), orderID)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to get order")
		return
	}
	if current.UserID != userID {
		respondWithError(w, r,http.StatusNotFound, errors.New("order not found"), "Failed to get order")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(order, "Order status updated"))
}
