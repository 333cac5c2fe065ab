package models

import (
	"time"

	"github.com/google/uuid"
)

// Article is a news/content entry.
type Article struct {
	ArticleID   uuid.UUID  `json:"article_id" db:"article_id"`
	Title       string     `json:"title" db:"title"`
	Content     string     `json:"content" db:"content"`
	Author      string     `json:"author" db:"author"`
	IsPublished bool       `json:"is_published" db:"is_published"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}
