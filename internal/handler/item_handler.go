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

// ItemHandler exposes the catalog CRUD and search endpoints.
type ItemHandler struct {
	itemService *service.ItemService
	logger      *zap.Logger
}

func NewItemHandler(itemService *service.ItemService, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{
		itemService: itemService,
		logger:      logger,
	}
}

// RegisterPublicRoutes mounts read-only catalog routes.
func (h *ItemHandler) RegisterPublicRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.ListItems)
		r.Get("/search", h.SearchItems)
		r.Get("/{itemID}", h.GetItem)
	})
}

// RegisterProtectedRoutes mounts the catalog write routes.
func (h *ItemHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.CreateItem)
		r.Put("/{itemID}", h.UpdateItem)
		r.Delete("/{itemID}", h.DeleteItem)
	})
}

func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req service.ItemCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	item, err := h.itemService.Create(r.Context(), req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to create item")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(item, "Item created successfully"))
}

func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid item ID")
		return
	}

	item, err := h.itemService.Get(r.Context(), itemID)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to get item")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(item, ""))
}

func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	category := r.URL.Query().Get("category")

	items, err := h.itemService.List(r.Context(), limit, category)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to list items")
		return
	}

	resp := successResponse(items, "")
	resp.Meta = &Meta{Total: len(items), PageSize: len(items)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ItemHandler) SearchItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithJSON(w, http.StatusOK, successResponse([]service.ItemSearchResult{}, ""))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.itemService.Search(r.Context(), query, limit)
	if err != nil {
		respondWithError(w, r,http.StatusInternalServerError, err, "Search failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(results, ""))
}

func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid item ID")
		return
	}

	var req service.ItemCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	item, err := h.itemService.Update(r.Context(), itemID, req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to update item")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(item, "Item updated successfully"))
}

func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid item ID")
		return
	}

	if err := h.itemService.Delete(r.Context(), itemID); err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to delete item")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Item deleted successfully"))
}
