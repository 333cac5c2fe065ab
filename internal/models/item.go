package models

import (
	"time"

	"github.com/google/uuid"
)

// Item is a catalog product.
type Item struct {
	ItemID      uuid.UUID  `json:"item_id" db:"item_id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description,omitempty" db:"description"`
	Price       float64    `json:"price" db:"price"`
	Category    string     `json:"category" db:"category"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// ItemDocument is the shape indexed into Elasticsearch for catalog search.
type ItemDocument struct {
	ItemID      string  `json:"item_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
}
