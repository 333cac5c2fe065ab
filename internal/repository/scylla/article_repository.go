package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/html-librarian/mig-catalog/internal/models"
)

type ArticleRepositoryInterface interface {
	Create(ctx context.Context, article *models.Article) error
	GetByID(ctx context.Context, articleID uuid.UUID) (*models.Article, error)
	List(ctx context.Context, limit int) ([]*models.Article, error)
	Update(ctx context.Context, article *models.Article) error
	Delete(ctx context.Context, articleID uuid.UUID) error
}

type ArticleRepository struct {
	client *ScyllaClient
}

func NewArticleRepository(client *ScyllaClient) *ArticleRepository {
	return &ArticleRepository{client: client}
}

func (r *ArticleRepository) Create(ctx context.Context, article *models.Article) error {
	query := r.client.Prepared.CreateArticle.
		Bind(article.ArticleID, article.Title, article.Content, article.Author,
			article.IsPublished, article.CreatedAt, article.UpdatedAt).
		WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

func (r *ArticleRepository) GetByID(ctx context.Context, articleID uuid.UUID) (*models.Article, error) {
	article := &models.Article{}

	query := r.client.Prepared.GetArticle.Bind(articleID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&article.ArticleID, &article.Title, &article.Content, &article.Author,
		&article.IsPublished, &article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return article, nil
}

func (r *ArticleRepository) List(ctx context.Context, limit int) ([]*models.Article, error) {
	iter := r.client.Prepared.ListArticles.WithContext(ctx).PageSize(limit).Iter()

	articles := make([]*models.Article, 0, limit)
	for len(articles) < limit {
		article := &models.Article{}
		if !iter.Scan(&article.ArticleID, &article.Title, &article.Content,
			&article.Author, &article.IsPublished, &article.CreatedAt,
			&article.UpdatedAt) {
			break
		}
		articles = append(articles, article)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

func (r *ArticleRepository) Update(ctx context.Context, article *models.Article) error {
	now := time.Now().UTC()
	article.UpdatedAt = &now

	query := r.client.Prepared.UpdateArticle.
		Bind(article.Title, article.Content, article.IsPublished,
			article.UpdatedAt, article.ArticleID).
		WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	return nil
}

func (r *ArticleRepository) Delete(ctx context.Context, articleID uuid.UUID) error {
	query := r.client.Prepared.DeleteArticle.Bind(articleID).WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return nil
}
