// services/challenge_guard.go
package services

import (
	"game-challenge-system/models"

	"gorm.io/gorm"
)

// ChallengeGuard blocks a user from stacking unresolved challenges against
// the same opponent. It walks the challenger's pending/accepted index
// buckets rather than scanning the whole challenge table.
type ChallengeGuard struct {
	DB *gorm.DB
}

func NewChallengeGuard(db *gorm.DB) *ChallengeGuard {
	return &ChallengeGuard{DB: db}
}

// CheckOverlap returns a StateConflictError when creation must be blocked:
//   - a pending challenge already exists between the two users for the
//     same game (the existing id is returned so the client can resume it);
//   - an accepted challenge exists between them for any game with neither
//     score submitted yet.
//
// A non-nil second return means the index backend failed; the caller
// degrades open and logs instead of blocking creation.
func (g *ChallengeGuard) CheckOverlap(challengerID, challengedID, gameID string) (*StateConflictError, error) {
	var entries []models.UserChallengeIndex
	if err := g.DB.
		Where("user_id = ? AND status IN ?", challengerID,
			[]string{models.ChallengeStatusPending, models.ChallengeStatusAccepted}).
		Find(&entries).Error; err != nil {
		return nil, err
	}

	for _, entry := range entries {
		var ch models.Challenge
		if err := g.DB.First(&ch, "id = ?", entry.ChallengeID).Error; err != nil {
			// Stale index row; the index is eventually consistent.
			continue
		}

		if !ch.Involves(challengedID) {
			continue
		}

		switch ch.Status {
		case models.ChallengeStatusPending:
			if ch.GameID == gameID {
				return &StateConflictError{
					Msg:                 "a pending challenge against this opponent already exists for this game",
					CurrentStatus:       ch.Status,
					ExistingChallengeID: ch.ID,
				}, nil
			}
		case models.ChallengeStatusAccepted:
			if ch.ChallengerScore == nil && ch.ChallengedScore == nil {
				return &StateConflictError{
					Msg:                 "an accepted challenge against this opponent is still unplayed",
					CurrentStatus:       ch.Status,
					ExistingChallengeID: ch.ID,
				}, nil
			}
		}
	}

	return nil, nil
}
