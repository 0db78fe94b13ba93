// models/game_session.go
package models

import "time"

// GameSessionTTL is how long a session token stays valid after Start.
const GameSessionTTL = 30 * time.Minute

// GameSession is the short-lived, single-use credential gating one score
// submission. Bound to exactly one (challenge, user) pair; deleted by the
// submit path whether or not the submission completed the challenge.
type GameSession struct {
	Token       string    `json:"token" gorm:"primaryKey;size:128"`
	ChallengeID string    `json:"challenge_id" gorm:"index;not null"`
	UserID      string    `json:"user_id" gorm:"index;not null"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"index;not null"`
}

func (s *GameSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
