package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/client"
	"github.com/html-librarian/mig-catalog/internal/models"
	redisrepo "github.com/html-librarian/mig-catalog/internal/repository/redis"
	"github.com/html-librarian/mig-catalog/internal/repository/scylla"
	"github.com/html-librarian/mig-catalog/internal/util"
)

var ErrItemNotFound = errors.New("item not found")

const (
	itemCachePrefix = "items:"
	itemCacheTTL    = 5 * time.Minute
)

// ItemCreateRequest is the payload for creating or replacing an item.
type ItemCreateRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}

// ItemSearchResult is one search hit with its relevance score.
type ItemSearchResult struct {
	Item  models.ItemDocument `json:"item"`
	Score float64             `json:"score"`
}

// ItemService owns the catalog. Reads go through the cache, writes go to
// Scylla and are mirrored into the search index. Indexing failures do not
// fail the write: the catalog row is authoritative and the index catches
// up on the next update.
type ItemService struct {
	items  scylla.ItemRepositoryInterface
	cache  *redisrepo.Cache
	search *client.ESClient
	index  string
	logger *zap.Logger
}

func NewItemService(
	items scylla.ItemRepositoryInterface,
	cache *redisrepo.Cache,
	search *client.ESClient,
	index string,
	logger *zap.Logger,
) *ItemService {
	return &ItemService{
		items:  items,
		cache:  cache,
		search: search,
		index:  index,
		logger: logger,
	}
}

func (s *ItemService) Create(ctx context.Context, req ItemCreateRequest) (*models.Item, error) {
	if err := validateItem(req); err != nil {
		return nil, err
	}

	item := &models.Item{
		ItemID:      uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.indexItem(ctx, item)
	s.invalidateLists(ctx)

	return item, nil
}

func (s *ItemService) Get(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	var item models.Item

	key := itemCachePrefix + itemID.String()
	err := s.cache.GetOrLoad(ctx, key, itemCacheTTL, &item, func(ctx context.Context) (interface{}, error) {
		return s.items.GetByID(ctx, itemID)
	})
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	return &item, nil
}

// List returns catalog items, optionally restricted to one category.
func (s *ItemService) List(ctx context.Context, limit int, category string) ([]*models.Item, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var items []*models.Item

	key := fmt.Sprintf("%slist:%d:%s", itemCachePrefix, limit, category)
	err := s.cache.GetOrLoad(ctx, key, itemCacheTTL, &items, func(ctx context.Context) (interface{}, error) {
		loaded, err := s.items.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		if category == "" {
			return loaded, nil
		}
		matched := make([]*models.Item, 0, len(loaded))
		for _, item := range loaded {
			if item.Category == category {
				matched = append(matched, item)
			}
		}
		return matched, nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (s *ItemService) Update(ctx context.Context, itemID uuid.UUID, req ItemCreateRequest) (*models.Item, error) {
	if err := validateItem(req); err != nil {
		return nil, err
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	item.Name = req.Name
	item.Description = req.Description
	item.Price = req.Price
	item.Category = req.Category

	if err := s.items.Update(ctx, item); err != nil {
		return nil, err
	}

	s.indexItem(ctx, item)
	s.invalidateItem(ctx, itemID)

	return item, nil
}

func (s *ItemService) Delete(ctx context.Context, itemID uuid.UUID) error {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrItemNotFound
		}
		return err
	}

	if err := s.items.Delete(ctx, itemID); err != nil {
		return err
	}

	if s.search != nil {
		if _, err := s.search.DeleteDocument(ctx, s.index, itemID.String()); err != nil {
			s.logger.Warn("failed to remove item from search index",
				util.String("item_id", itemID.String()), util.ErrorField(err))
		}
	}
	s.invalidateItem(ctx, itemID)

	return nil
}

// Search runs a full-text query over name and description.
func (s *ItemService) Search(ctx context.Context, queryText string, limit int) ([]ItemSearchResult, error) {
	if s.search == nil {
		return nil, fmt.Errorf("search is not available")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  queryText,
				"fields": []string{"name^2", "description", "category"},
			},
		},
	}

	res, err := s.search.Search(ctx, s.index, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	// ParseResponse owns the response body.
	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64             `json:"_score"`
				Source models.ItemDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := s.search.ParseResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]ItemSearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, ItemSearchResult{Item: hit.Source, Score: hit.Score})
	}

	return results, nil
}

func (s *ItemService) indexItem(ctx context.Context, item *models.Item) {
	if s.search == nil {
		return
	}

	doc := models.ItemDocument{
		ItemID:      item.ItemID.String(),
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
	}

	if _, err := s.search.IndexDocument(ctx, s.index, doc.ItemID, doc); err != nil {
		s.logger.Warn("failed to index item",
			util.String("item_id", doc.ItemID), util.ErrorField(err))
	}
}

func (s *ItemService) invalidateItem(ctx context.Context, itemID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, itemCachePrefix+itemID.String()); err != nil {
		s.logger.Warn("failed to invalidate item cache", util.ErrorField(err))
	}
	s.invalidateLists(ctx)
}

func (s *ItemService) invalidateLists(ctx context.Context) {
	if err := s.cache.InvalidatePrefix(ctx, itemCachePrefix+"list:"); err != nil {
		s.logger.Warn("failed to invalidate item list cache", util.ErrorField(err))
	}
}

func validateItem(req ItemCreateRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if req.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}
	return nil
}
