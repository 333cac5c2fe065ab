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

type ItemRepositoryInterface interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error)
	List(ctx context.Context, limit int) ([]*models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	Delete(ctx context.Context, itemID uuid.UUID) error
}

type ItemRepository struct {
	client *ScyllaClient
}

func NewItemRepository(client *ScyllaClient) *ItemRepository {
	return &ItemRepository{client: client}
}

func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	query := r.client.Prepared.CreateItem.
		Bind(item.ItemID, item.Name, item.Description, item.Price,
			item.Category, item.CreatedAt, item.UpdatedAt).
		WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (r *ItemRepository) GetByID(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	item := &models.Item{}

	query := r.client.Prepared.GetItem.Bind(itemID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&item.ItemID, &item.Name, &item.Description, &item.Price,
		&item.Category, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

func (r *ItemRepository) List(ctx context.Context, limit int) ([]*models.Item, error) {
	iter := r.client.Prepared.ListItems.WithContext(ctx).PageSize(limit).Iter()

	items := make([]*models.Item, 0, limit)
	for len(items) < limit {
		item := &models.Item{}
		if !iter.Scan(&item.ItemID, &item.Name, &item.Description, &item.Price,
			&item.Category, &item.CreatedAt, &item.UpdatedAt) {
			break
		}
		items = append(items, item)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (r *ItemRepository) Update(ctx context.Context, item *models.Item) error {
	now := time.Now().UTC()
	item.UpdatedAt = &now

	query := r.client.Prepared.UpdateItem.
		Bind(item.Name, item.Description, item.Price, item.Category,
			item.UpdatedAt, item.ItemID).
		WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}

func (r *ItemRepository) Delete(ctx context.Context, itemID uuid.UUID) error {
	query := r.client.Prepared.DeleteItem.Bind(itemID).WithContext(ctx)

	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}
