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

// ArticleHandler exposes the content endpoints.
type ArticleHandler struct {
	articleService *service.ArticleService
	logger         *zap.Logger
}

func NewArticleHandler(articleService *service.ArticleService, logger *zap.Logger) *ArticleHandler {
	return &ArticleHandler{
		articleService: articleService,
		logger:         logger,
	}
}

func (h *ArticleHandler) RegisterPublicRoutes(r chi.Router) {
	r.Route("/articles", func(r chi.Router) {
		r.Get("/", h.ListArticles)
		r.Get("/{articleID}", h.GetArticle)
	})
}

func (h *ArticleHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Route("/articles", func(r chi.Router) {
		r.Post("/", h.CreateArticle)
		r.Put("/{articleID}", h.UpdateArticle)
		r.Delete("/{articleID}", h.DeleteArticle)
	})
}

func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var req service.ArticleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	article, err := h.articleService.Create(r.Context(), req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to create article")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(article, "Article created successfully"))
}

func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := uuid.Parse(chi.URLParam(r, "articleID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid article ID")
		return
	}

	article, err := h.articleService.Get(r.Context(), articleID)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to get article")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(article, ""))
}

func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	publishedOnly, _ := strconv.ParseBool(r.URL.Query().Get("published"))

	articles, err := h.articleService.List(r.Context(), limit, publishedOnly)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to list articles")
		return
	}

	resp := successResponse(articles, "")
	resp.Meta = &Meta{Total: len(articles), PageSize: len(articles)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ArticleHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := uuid.Parse(chi.URLParam(r, "articleID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid article ID")
		return
	}

	var req service.ArticleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid request body")
		return
	}

	article, err := h.articleService.Update(r.Context(), articleID, req)
	if err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to update article")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(article, "Article updated successfully"))
}

func (h *ArticleHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	articleID, err := uuid.Parse(chi.URLParam(r, "articleID"))
	if err != nil {
		respondWithError(w, r,http.StatusBadRequest, err, "Invalid article ID")
		return
	}

	if err := h.articleService.Delete(r.Context(), articleID); err != nil {
		respondWithError(w, r,getStatusCode(err), err, "Failed to delete article")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Article deleted successfully"))
}
