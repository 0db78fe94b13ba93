// models/user.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// ChallengeUser is a local snapshot of profile data the engine needs for
// notifications and interaction authorship (display name, avatar, mobile
// push token). Owned by this service; populated by the user sync worker
// from the profile service.
type ChallengeUser struct {
	ID                string     `json:"id" gorm:"primaryKey;type:uuid"`
	ExternalUserID    string     `json:"external_user_id" gorm:"uniqueIndex;not null"`
	Username          string     `json:"username" gorm:"index;not null"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty"`
	PushToken         *string    `json:"-"` // mobile push; nil = never registered
	LastSeen          *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// RemoteProfile mirrors the profile service's public payload shape
// (read-only, consumed by the sync worker).
type RemoteProfile struct {
	ExternalID        string     `json:"external_id"`
	Username          string     `json:"username"`
	ProfilePictureURL *string    `json:"profile_picture_url"`
	PushToken         *string    `json:"push_token"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at"`
}
