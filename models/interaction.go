// models/interaction.go
package models

import "time"

const (
	InteractionKindMessage  = "message"
	InteractionKindReaction = "reaction"
)

const (
	ReactionActionAdded   = "added"
	ReactionActionRemoved = "removed"
)

// ChallengeInteraction is the unified append-only log of in-challenge chat
// and reactions. Reactions are toggled by appending an "added" then later a
// "removed" row for the same (user, emoji) pair — history is never deleted.
type ChallengeInteraction struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string `json:"challenge_id" gorm:"index;not null"`
	Kind        string `json:"kind" gorm:"index;not null;check:kind IN ('message','reaction')"`

	UserID        string `json:"user_id" gorm:"index;not null"`
	UserName      string `json:"user_name"`
	UserAvatarURL string `json:"user_avatar_url"`

	Payload string `json:"payload"` // message text or reaction emoji
	Action  string `json:"action,omitempty"` // reactions only: added | removed

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// ChallengeMessage is the legacy per-purpose message log. Still written on
// every message for backward compatibility; reads merge it with the
// unified log. TODO: drop once the one-time migration into
// challenge_interactions has run in production.
type ChallengeMessage struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string    `json:"challenge_id" gorm:"index;not null"`
	UserID      string    `json:"user_id" gorm:"not null"`
	UserName    string    `json:"user_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// ChallengeReaction is the legacy per-purpose reaction log, same
// compatibility story as ChallengeMessage.
type ChallengeReaction struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string    `json:"challenge_id" gorm:"index;not null"`
	UserID      string    `json:"user_id" gorm:"not null"`
	UserName    string    `json:"user_name"`
	Emoji       string    `json:"emoji"`
	Action      string    `json:"action" gorm:"check:action IN ('added','removed')"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
