// models/game.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Game is a catalog entry challenges reference. The challenge row
// denormalizes title/image/url from here at creation time so history
// survives catalog edits.
type Game struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	Title    string `json:"title" gorm:"not null"`
	Slug     string `json:"slug" gorm:"uniqueIndex;not null"`
	ImageURL string `json:"image_url"` // CDN URL of the uploaded logo
	PlayURL  string `json:"play_url"`
	Active   bool   `json:"active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
