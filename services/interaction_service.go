// services/interaction_service.go
package services

import (
	"errors"
	"log"
	"sort"
	"time"

	"game-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InteractionService is the append-only log of in-challenge messages and
// reactions. It is a compatibility shim: writes land in the unified
// challenge_interactions table AND in the two legacy per-purpose tables;
// reads merge all three and de-duplicate, because a record may exist in
// more than one place until the one-time migration retires the legacy
// path.
type InteractionService struct {
	DB *gorm.DB
}

func NewInteractionService(db *gorm.DB) *InteractionService {
	return &InteractionService{DB: db}
}

// gate allows interactions only once the challenge is accepted (and keeps
// the thread readable after completion).
func (s *InteractionService) gate(challengeID, userID string) (*models.Challenge, error) {
	var ch models.Challenge
	if err := s.DB.First(&ch, "id = ?", challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "challenge"}
		}
		return nil, err
	}
	if !ch.Involves(userID) {
		return nil, &AuthorizationError{Msg: "you are not a participant in this challenge"}
	}
	if ch.Status != models.ChallengeStatusAccepted && ch.Status != models.ChallengeStatusCompleted {
		return nil, &StateConflictError{
			Msg:           "interactions open once the challenge is accepted",
			CurrentStatus: ch.Status,
		}
	}
	return &ch, nil
}

func (s *InteractionService) author(userID string) (name, avatar string) {
	var u models.ChallengeUser
	if err := s.DB.Where("external_user_id = ?", userID).First(&u).Error; err != nil {
		return "", ""
	}
	name = u.Username
	if u.ProfilePictureURL != nil {
		avatar = *u.ProfilePictureURL
	}
	return name, avatar
}

// PostMessage appends a chat message, dual-writing unified + legacy.
func (s *InteractionService) PostMessage(challengeID, userID, text string) (*models.ChallengeInteraction, error) {
	if text == "" {
		return nil, &ValidationError{Msg: "message text is required"}
	}
	if _, err := s.gate(challengeID, userID); err != nil {
		return nil, err
	}

	name, avatar := s.author(userID)
	now := time.Now()

	record := models.ChallengeInteraction{
		ID:            uuid.NewString(),
		ChallengeID:   challengeID,
		Kind:          models.InteractionKindMessage,
		UserID:        userID,
		UserName:      name,
		UserAvatarURL: avatar,
		Payload:       text,
		CreatedAt:     now,
	}
	legacy := models.ChallengeMessage{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		UserID:      userID,
		UserName:    name,
		Text:        text,
		CreatedAt:   now,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Create(&legacy).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ToggleReaction appends an "added" or "removed" record for the
// (user, emoji) pair depending on its current logical state. History is
// never deleted.
func (s *InteractionService) ToggleReaction(challengeID, userID, emoji string) (*models.ChallengeInteraction, error) {
	if emoji == "" {
		return nil, &ValidationError{Msg: "emoji is required"}
	}
	if _, err := s.gate(challengeID, userID); err != nil {
		return nil, err
	}

	// The latest record for the pair decides the toggle direction. Check
	// the unified log first, fall back to the legacy one.
	action := models.ReactionActionAdded
	var last models.ChallengeInteraction
	err := s.DB.
		Where("challenge_id = ? AND user_id = ? AND kind = ? AND payload = ?",
			challengeID, userID, models.InteractionKindReaction, emoji).
		Order("created_at DESC").First(&last).Error
	if err == nil {
		if last.Action == models.ReactionActionAdded {
			action = models.ReactionActionRemoved
		}
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		var legacyLast models.ChallengeReaction
		if err := s.DB.
			Where("challenge_id = ? AND user_id = ? AND emoji = ?", challengeID, userID, emoji).
			Order("created_at DESC").First(&legacyLast).Error; err == nil {
			if legacyLast.Action == models.ReactionActionAdded {
				action = models.ReactionActionRemoved
			}
		}
	} else {
		return nil, err
	}

	name, avatar := s.author(userID)
	now := time.Now()

	record := models.ChallengeInteraction{
		ID:            uuid.NewString(),
		ChallengeID:   challengeID,
		Kind:          models.InteractionKindReaction,
		UserID:        userID,
		UserName:      name,
		UserAvatarURL: avatar,
		Payload:       emoji,
		Action:        action,
		CreatedAt:     now,
	}
	legacy := models.ChallengeReaction{
		ID:          uuid.NewString(),
		ChallengeID: challengeID,
		UserID:      userID,
		UserName:    name,
		Emoji:       emoji,
		Action:      action,
		CreatedAt:   now,
	}

	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Create(&legacy).Error
	})
	if txErr != nil {
		return nil, txErr
	}
	return &record, nil
}

// List merges the unified log with both legacy logs, de-duplicated by
// (author, timestamp, payload), oldest first.
func (s *InteractionService) List(challengeID, userID string) ([]models.ChallengeInteraction, error) {
	if _, err := s.gate(challengeID, userID); err != nil {
		return nil, err
	}

	var unified []models.ChallengeInteraction
	if err := s.DB.Where("challenge_id = ?", challengeID).Find(&unified).Error; err != nil {
		return nil, err
	}

	var messages []models.ChallengeMessage
	if err := s.DB.Where("challenge_id = ?", challengeID).Find(&messages).Error; err != nil {
		return nil, err
	}
	var reactions []models.ChallengeReaction
	if err := s.DB.Where("challenge_id = ?", challengeID).Find(&reactions).Error; err != nil {
		return nil, err
	}

	type dedupeKey struct {
		UserID    string
		CreatedAt int64
		Payload   string
	}
	seen := make(map[dedupeKey]struct{})
	merged := make([]models.ChallengeInteraction, 0, len(unified)+len(messages)+len(reactions))

	add := func(rec models.ChallengeInteraction) {
		key := dedupeKey{UserID: rec.UserID, CreatedAt: rec.CreatedAt.UnixMilli(), Payload: rec.Payload}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, rec)
	}

	for _, rec := range unified {
		add(rec)
	}
	for _, m := range messages {
		add(models.ChallengeInteraction{
			ID:          m.ID,
			ChallengeID: m.ChallengeID,
			Kind:        models.InteractionKindMessage,
			UserID:      m.UserID,
			UserName:    m.UserName,
			Payload:     m.Text,
			CreatedAt:   m.CreatedAt,
		})
	}
	for _, r := range reactions {
		add(models.ChallengeInteraction{
			ID:          r.ID,
			ChallengeID: r.ChallengeID,
			Kind:        models.InteractionKindReaction,
			UserID:      r.UserID,
			UserName:    r.UserName,
			Payload:     r.Emoji,
			Action:      r.Action,
			CreatedAt:   r.CreatedAt,
		})
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged, nil
}

// --- HTTP handlers ---

// PostChallengeMessage handles POST /challenges/:id/messages.
func (s *InteractionService) PostChallengeMessage(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	record, err := s.PostMessage(c.Params("id"), userID, req.Text)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// ToggleChallengeReaction handles POST /challenges/:id/reactions.
func (s *InteractionService) ToggleChallengeReaction(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	record, err := s.ToggleReaction(c.Params("id"), userID, req.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// GetChallengeInteractions handles GET /challenges/:id/interactions.
func (s *InteractionService) GetChallengeInteractions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	records, err := s.List(c.Params("id"), userID)
	if err != nil {
		log.Printf("Error listing interactions for %s: %v", c.Params("id"), err)
		return respondError(c, err)
	}
	return c.JSON(records)
}
