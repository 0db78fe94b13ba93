// models/challenge.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ChallengeStatusPending   = "pending"
	ChallengeStatusAccepted  = "accepted"
	ChallengeStatusRejected  = "rejected"
	ChallengeStatusCancelled = "cancelled"
	ChallengeStatusExpired   = "expired"
	ChallengeStatusCompleted = "completed"
)

// WinnerTie is stored in WinnerID when both scores are equal.
const WinnerTie = "tie"

// ChallengeTTL is how long a pending challenge stays acceptable.
const ChallengeTTL = 24 * time.Hour

// Challenge is a bet-backed head-to-head contest between two users.
// Owned by the challenge service — status and scores are only ever
// mutated through its transitions, never written directly by handlers.
type Challenge struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengerID string `json:"challenger_id" gorm:"index;not null"`
	ChallengedID string `json:"challenged_id" gorm:"index;not null"`

	// 🎮 Game reference (denormalized from the catalog at creation time)
	GameID    string `json:"game_id" gorm:"index;not null"`
	GameTitle string `json:"game_title"`
	GameImage string `json:"game_image"`
	GameURL   string `json:"game_url"`

	// 💰 Stake in currency minor units
	BetAmount int64  `json:"bet_amount" gorm:"not null;check:bet_amount > 0"`
	Message   string `json:"message,omitempty"`

	Status string `json:"status" gorm:"index;default:'pending';check:status IN ('pending','accepted','rejected','cancelled','expired','completed')"`

	// Scores stay NULL until submitted; 0 is a valid submitted score.
	ChallengerScore *int64  `json:"challenger_score"`
	ChallengedScore *int64  `json:"challenged_score"`
	WinnerID        *string `json:"winner_id,omitempty"` // participant id or "tie"

	ExpiresAt   time.Time  `json:"expires_at" gorm:"index;not null"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Involves reports whether userID is one of the two participants.
func (c *Challenge) Involves(userID string) bool {
	return c.ChallengerID == userID || c.ChallengedID == userID
}

// Opponent returns the other participant's id.
func (c *Challenge) Opponent(userID string) string {
	if c.ChallengerID == userID {
		return c.ChallengedID
	}
	return c.ChallengerID
}

// IsExpired is the lazy expiry check — pending challenges past their TTL
// are treated as expired on access, no background sweep required.
func (c *Challenge) IsExpired(now time.Time) bool {
	return c.Status == ChallengeStatusPending && now.After(c.ExpiresAt)
}

// UserChallengeIndex is a denormalized (user, status) → challenge bucket
// so history queries and the overlap guard avoid full-table scans.
// Eventually consistent with the Challenge row; rebuildable from it.
type UserChallengeIndex struct {
	UserID      string    `json:"user_id" gorm:"primaryKey;size:64"`
	Status      string    `json:"status" gorm:"primaryKey;size:16"`
	ChallengeID string    `json:"challenge_id" gorm:"primaryKey;type:uuid"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (UserChallengeIndex) TableName() string {
	return "user_challenge_index"
}
