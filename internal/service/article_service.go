package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/models"
	redisrepo "github.com/html-librarian/mig-catalog/internal/repository/redis"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/util"
)

var ErrArticleNotFound = errors.New("article not found")

const (
	articleCachePrefix = "articles:"
	articleCacheTTL    = 10 * time.Minute
)

// ArticleCreateRequest is the payload for creating or replacing an article.
type ArticleCreateRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	IsPublished bool   `json:"is_published"`
}

type ArticleService struct {
	articles scylla.ArticleRepositoryInterface
	cache    *redisrepo.Cache
	logger   *zap.Logger
}

func NewArticleService(articles scylla.ArticleRepositoryInterface, cache *redisrepo.Cache, logger *zap.Logger) *ArticleService {
	return &ArticleService{
		articles: articles,
		cache:    cache,
		logger:   logger,
	}
}

func (s *ArticleService) Create(ctx context.Context, req ArticleCreateRequest) (*models.Article, error) {
	if req.Title == "" || req.Content == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidInput)
	}

	article := &models.Article{
		ArticleID:   uuid.New(),
		Title:       util.SanitizeInput(req.Title),
		Content:     req.Content,
		Author:      util.SanitizeInput(req.Author),
		IsPublished: req.IsPublished,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.articles.Create(ctx, article); err != nil {
		return nil, err
	}

	s.invalidateLists(ctx)
	return article, nil
}

func (s *ArticleService) Get(ctx context.Context, articleID uuid.UUID) (*models.Article, error) {
	var article models.Article

	key := articleCachePrefix + articleID.String()
	err := s.cache.GetOrLoad(ctx, key, articleCacheTTL, &article, func(ctx context.Context) (interface{}, error) {
		return s.articles.GetByID(ctx, articleID)
	})
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}

	return &article, nil
}

// List returns recent articles, optionally only published ones.
func (s *ArticleService) List(ctx context.Context, limit int, publishedOnly bool) ([]*models.Article, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var articles []*models.Article

	key := fmt.Sprintf("%slist:%d:%t", articleCachePrefix, limit, publishedOnly)
	err := s.cache.GetOrLoad(ctx, key, articleCacheTTL, &articles, func(ctx context.Context) (interface{}, error) {
		loaded, err := s.articles.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		if !publishedOnly {
			return loaded, nil
		}
		published := make([]*models.Article, 0, len(loaded))
		for _, article := range loaded {
			if article.IsPublished {
				published = append(published, article)
			}
		}
		return published, nil
	})
	if err != nil {
		return nil, err
	}

	return articles, nil
}

func (s *ArticleService) Update(ctx context.Context, articleID uuid.UUID, req ArticleCreateRequest) (*models.Article, error) {
	if req.Title == "" || req.Content == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrInvalidInput)
	}

	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}

	article.Title = util.SanitizeInput(req.Title)
	article.Content = req.Content
	article.IsPublished = req.IsPublished

	if err := s.articles.Update(ctx, article); err != nil {
		return nil, err
	}

	s.invalidateArticle(ctx, articleID)
	return article, nil
}

func (s *ArticleService) Delete(ctx context.Context, articleID uuid.UUID) error {
	if _, err := s.articles.GetByID(ctx, articleID); err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrArticleNotFound
		}
		return err
	}

	if err := s.articles.Delete(ctx, articleID); err != nil {
		return err
	}

	s.invalidateArticle(ctx, articleID)
	return nil
}

func (s *ArticleService) invalidateArticle(ctx context.Context, articleID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, articleCachePrefix+articleID.String()); err != nil {
		s.logger.Warn("failed to invalidate article cache", util.ErrorField(err))
	}
	s.invalidateLists(ctx)
}

func (s *ArticleService) invalidateLists(ctx context.Context) {
	if err := s.cache.InvalidatePrefix(ctx, articleCachePrefix+"list:"); err != nil {
		s.logger.Warn("failed to invalidate article list cache", util.ErrorField(err))
	}
}
