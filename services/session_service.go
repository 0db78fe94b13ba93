// services/session_service.go
package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"game-challenge-system/models"

	"gorm.io/gorm"
)

// SessionService is the game session gate: short-lived, single-use tokens
// binding a (challenge, user) pair, required before a score is accepted.
type SessionService struct {
	DB *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{DB: db}
}

// Start issues a fresh session token for the pair. Any previous session
// for the same pair is replaced so a lost token is never a dead end.
func (s *SessionService) Start(challengeID, userID string) (*models.GameSession, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}

	now := time.Now()
	session := models.GameSession{
		Token:       hex.EncodeToString(buf),
		ChallengeID: challengeID,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(models.GameSessionTTL),
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, userID).
			Delete(&models.GameSession{}).Error; err != nil {
			return err
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Validate checks the token against the pair and its TTL, with distinct
// user-facing failures for absent, mismatched and expired sessions.
func (s *SessionService) Validate(token, challengeID, userID string) (*models.GameSession, error) {
	if token == "" {
		return nil, &SessionInvalidError{Reason: "no game session token provided — start a new game session"}
	}

	var session models.GameSession
	if err := s.DB.Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &SessionInvalidError{Reason: "game session not found — start a new game session"}
		}
		return nil, err
	}

	if session.ChallengeID != challengeID || session.UserID != userID {
		return nil, &SessionInvalidError{Reason: "game session does not match this challenge and user — start a new game session"}
	}

	if session.Expired(time.Now()) {
		return nil, &SessionInvalidError{Reason: "game session expired — start a new game session"}
	}

	return &session, nil
}

// Consume deletes the session. Called by the submit path unconditionally
// once validation passed, making every token strictly single-use.
func (s *SessionService) Consume(token string) error {
	return s.DB.Where("token = ?", token).Delete(&models.GameSession{}).Error
}
