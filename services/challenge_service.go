// services/challenge_service.go
package services

import (
	"errors"
	"log"
	"time"

	"game-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChallengeService is the state machine driving a challenge from proposal
// to completion. It owns every status transition and the escrow movements
// tied to them; handlers and workers only ever go through its operations.
type ChallengeService struct {
	DB         *gorm.DB
	Wallet     *WalletService
	Sessions   *SessionService
	Guard      *ChallengeGuard
	Notify     *NotifyService
	Settlement *SettlementClient

	MinBet int64
	MaxBet int64
}

func NewChallengeService(db *gorm.DB, wallet *WalletService, sessions *SessionService,
	guard *ChallengeGuard, notify *NotifyService, settlement *SettlementClient,
	minBet, maxBet int64) *ChallengeService {
	return &ChallengeService{
		DB:         db,
		Wallet:     wallet,
		Sessions:   sessions,
		Guard:      guard,
		Notify:     notify,
		Settlement: settlement,
		MinBet:     minBet,
		MaxBet:     maxBet,
	}
}

// --- Core operations ---

// Create validates the request, holds the challenger's bet in escrow and
// writes a new pending challenge with a 24h TTL.
func (s *ChallengeService) Create(challengerID, challengedID, gameID string, betAmount int64, msg string) (*models.Challenge, error) {
	if challengerID == challengedID {
		return nil, &ValidationError{Msg: "you cannot challenge yourself"}
	}
	if betAmount < s.MinBet || betAmount > s.MaxBet {
		return nil, &ValidationError{Msg: "bet amount is outside the allowed range"}
	}

	var game models.Game
	if err := s.DB.First(&game, "id = ? AND active = ?", gameID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Msg: "unknown game"}
		}
		return nil, err
	}

	// Duplicate guard degrades open: an index outage must not block the
	// whole create path, it only weakens duplicate prevention.
	if conflict, err := s.Guard.CheckOverlap(challengerID, challengedID, gameID); err != nil {
		log.Printf("⚠️ [GUARD] overlap check failed for %s vs %s: %v — allowing create", challengerID, challengedID, err)
	} else if conflict != nil {
		return nil, conflict
	}

	challenge := models.Challenge{
		ID:           uuid.NewString(),
		ChallengerID: challengerID,
		ChallengedID: challengedID,
		GameID:       game.ID,
		GameTitle:    game.Title,
		GameImage:    game.ImageURL,
		GameURL:      game.PlayURL,
		BetAmount:    betAmount,
		Message:      msg,
		Status:       models.ChallengeStatusPending,
		ExpiresAt:    time.Now().Add(models.ChallengeTTL),
	}

	if err := s.Wallet.Hold(challengerID, betAmount, challenge.ID); err != nil {
		return nil, err
	}

	if err := s.DB.Create(&challenge).Error; err != nil {
		// Compensating rollback: the debit must not outlive a failed write.
		if relErr := s.Wallet.Release(challengerID, betAmount, challenge.ID); relErr != nil {
			log.Printf("🚨 [CHALLENGE] rollback failed after create error — manual reconciliation needed. create: %v release: %v", err, relErr)
		}
		return nil, err
	}

	s.reindex(&challenge)
	s.Notify.Dispatch(ChallengeEvent{
		Type:         EventChallengeCreated,
		ChallengeID:  challenge.ID,
		ChallengerID: challengerID,
		ChallengedID: challengedID,
		Payload: CreatedPayload{
			GameID:    game.ID,
			GameTitle: game.Title,
			BetAmount: betAmount,
			Message:   msg,
			ExpiresAt: challenge.ExpiresAt,
		},
	})

	return &challenge, nil
}

// Accept transitions pending → accepted, holding the challenged party's
// matching bet. The status write is a conditional update keyed on the
// pending status so exactly one concurrent accept can win.
func (s *ChallengeService) Accept(challengeID, userID string) (*models.Challenge, error) {
	ch, err := s.getChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if ch.ChallengedID != userID {
		return nil, &AuthorizationError{Msg: "only the challenged user can accept this challenge"}
	}
	if err := s.gatePending(ch); err != nil {
		return nil, err
	}

	if err := s.Wallet.Hold(userID, ch.BetAmount, ch.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND status = ?", ch.ID, models.ChallengeStatusPending).
		Updates(map[string]interface{}{
			"status":      models.ChallengeStatusAccepted,
			"accepted_at": now,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		// Lost the race (or the write failed) — undo the hold before
		// surfacing anything.
		if relErr := s.Wallet.Release(userID, ch.BetAmount, ch.ID); relErr != nil {
			log.Printf("🚨 [CHALLENGE] rollback failed after accept conflict on %s — manual reconciliation needed. accept: %v release: %v", ch.ID, res.Error, relErr)
		}
		if res.Error != nil {
			return nil, res.Error
		}
		fresh, _ := s.getChallenge(ch.ID)
		status := ""
		if fresh != nil {
			status = fresh.Status
		}
		return nil, &StateConflictError{Msg: "challenge is no longer pending", CurrentStatus: status}
	}

	ch.Status = models.ChallengeStatusAccepted
	ch.AcceptedAt = &now

	s.reindex(ch)
	s.Notify.Dispatch(ChallengeEvent{
		Type:         EventChallengeAccepted,
		ChallengeID:  ch.ID,
		ChallengerID: ch.ChallengerID,
		ChallengedID: ch.ChallengedID,
		Payload:      AcceptedPayload{AcceptedAt: now},
	})

	return ch, nil
}

// Reject declines a pending challenge and returns the challenger's escrow
// to their available balance.
func (s *ChallengeService) Reject(challengeID, userID string) (*models.Challenge, error) {
	return s.close(challengeID, userID, models.ChallengeStatusRejected)
}

// Cancel withdraws a pending challenge; challenger only. Escrow is
// released the same way.
func (s *ChallengeService) Cancel(challengeID, userID string) (*models.Challenge, error) {
	return s.close(challengeID, userID, models.ChallengeStatusCancelled)
}

// close is the shared pending → rejected|cancelled path.
func (s *ChallengeService) close(challengeID, userID, target string) (*models.Challenge, error) {
	ch, err := s.getChallenge(challengeID)
	if err != nil {
		return nil, err
	}

	if target == models.ChallengeStatusRejected && ch.ChallengedID != userID {
		return nil, &AuthorizationError{Msg: "only the challenged user can reject this challenge"}
	}
	if target == models.ChallengeStatusCancelled && ch.ChallengerID != userID {
		return nil, &AuthorizationError{Msg: "only the challenger can cancel this challenge"}
	}
	if err := s.gatePending(ch); err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{"status": target}
	if target == models.ChallengeStatusRejected {
		updates["rejected_at"] = now
	} else {
		updates["cancelled_at"] = now
	}

	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND status = ?", ch.ID, models.ChallengeStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		fresh, _ := s.getChallenge(ch.ID)
		status := ""
		if fresh != nil {
			status = fresh.Status
		}
		return nil, &StateConflictError{Msg: "challenge is no longer pending", CurrentStatus: status}
	}

	// Only the challenger's funds were held at creation; give them back.
	// The transition already happened, so a failed release is logged for
	// reconciliation, never surfaced as a failed reject/cancel.
	if err := s.Wallet.Release(ch.ChallengerID, ch.BetAmount, ch.ID); err != nil {
		log.Printf("🚨 [CHALLENGE] escrow release failed on %s of %s — manual reconciliation needed: %v", target, ch.ID, err)
	}

	ch.Status = target
	if target == models.ChallengeStatusRejected {
		ch.RejectedAt = &now
	} else {
		ch.CancelledAt = &now
	}

	s.reindex(ch)

	eventType := EventChallengeRejected
	var payload interface{} = RejectedPayload{RejectedAt: now}
	if target == models.ChallengeStatusCancelled {
		eventType = EventChallengeCancelled
		payload = CancelledPayload{CancelledAt: now}
	}
	s.Notify.Dispatch(ChallengeEvent{
		Type:         eventType,
		ChallengeID:  ch.ID,
		ChallengerID: ch.ChallengerID,
		ChallengedID: ch.ChallengedID,
		Payload:      payload,
	})

	return ch, nil
}

// StartSession issues a game session for a participant of an accepted
// challenge.
func (s *ChallengeService) StartSession(challengeID, userID string) (*models.GameSession, error) {
	ch, err := s.getChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if !ch.Involves(userID) {
		return nil, &AuthorizationError{Msg: "you are not a participant in this challenge"}
	}
	if ch.Status != models.ChallengeStatusAccepted {
		return nil, &StateConflictError{
			Msg:           "game sessions can only be started for accepted challenges",
			CurrentStatus: ch.Status,
		}
	}
	return s.Sessions.Start(ch.ID, userID)
}

// SubmitScore records the caller's score and, once both slots are filled,
// completes the challenge and settles the escrow. The caller's session is
// consumed whether or not completion occurred.
func (s *ChallengeService) SubmitScore(challengeID, userID string, score int64, sessionToken string) (*models.Challenge, error) {
	if score < 0 {
		return nil, &ValidationError{Msg: "score cannot be negative"}
	}

	ch, err := s.getChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if !ch.Involves(userID) {
		return nil, &AuthorizationError{Msg: "you are not a participant in this challenge"}
	}

	if _, err := s.Sessions.Validate(sessionToken, ch.ID, userID); err != nil {
		return nil, err
	}

	if ch.Status != models.ChallengeStatusAccepted {
		return nil, &StateConflictError{
			Msg:           "scores can only be submitted for accepted challenges",
			CurrentStatus: ch.Status,
		}
	}

	// Single-use: the session dies here no matter how the rest goes.
	if err := s.Sessions.Consume(sessionToken); err != nil {
		log.Printf("⚠️ [CHALLENGE] failed to consume session for %s on %s: %v", userID, ch.ID, err)
	}

	slot := "challenger_score"
	if userID == ch.ChallengedID {
		slot = "challenged_score"
	}

	// The slot only accepts one write, and only while accepted. A score
	// of 0 is a present score — presence is NULLness, never falsiness.
	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND status = ? AND "+slot+" IS NULL", ch.ID, models.ChallengeStatusAccepted).
		Update(slot, score)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		fresh, _ := s.getChallenge(ch.ID)
		if fresh != nil && fresh.Status == models.ChallengeStatusCompleted {
			return nil, &StateConflictError{Msg: "challenge is already completed", CurrentStatus: fresh.Status}
		}
		return nil, &StateConflictError{Msg: "you have already submitted a score for this challenge", CurrentStatus: models.ChallengeStatusAccepted}
	}

	completed, final, err := s.tryComplete(ch.ID)
	if err != nil {
		return nil, err
	}

	if !completed {
		s.Notify.Dispatch(ChallengeEvent{
			Type:         EventScoreSubmitted,
			ChallengeID:  ch.ID,
			ChallengerID: ch.ChallengerID,
			ChallengedID: ch.ChallengedID,
			Payload:      ScoreSubmittedPayload{UserID: userID, Score: score},
		})
	}

	return final, nil
}

// tryComplete checks "are both scores present" and flips to completed as
// one server-side unit: the row is locked for the read so two concurrent
// submitters cannot both see a half-filled row and neither complete it.
func (s *ChallengeService) tryComplete(challengeID string) (bool, *models.Challenge, error) {
	var completed bool
	var final models.Challenge

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var ch models.Challenge
		if err := lockForUpdate(tx).
			First(&ch, "id = ?", challengeID).Error; err != nil {
			return err
		}

		final = ch
		if ch.Status != models.ChallengeStatusAccepted ||
			ch.ChallengerScore == nil || ch.ChallengedScore == nil {
			return nil
		}

		winner := models.WinnerTie
		switch {
		case *ch.ChallengerScore > *ch.ChallengedScore:
			winner = ch.ChallengerID
		case *ch.ChallengedScore > *ch.ChallengerScore:
			winner = ch.ChallengedID
		}

		now := time.Now()
		res := tx.Model(&models.Challenge{}).
			Where("id = ? AND status = ?", ch.ID, models.ChallengeStatusAccepted).
			Updates(map[string]interface{}{
				"status":       models.ChallengeStatusCompleted,
				"completed_at": now,
				"winner_id":    winner,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		completed = true
		final.Status = models.ChallengeStatusCompleted
		final.CompletedAt = &now
		final.WinnerID = &winner
		return nil
	})
	if err != nil {
		return false, nil, err
	}

	if completed {
		s.reindex(&final)
		s.Notify.Dispatch(ChallengeEvent{
			Type:         EventChallengeCompleted,
			ChallengeID:  final.ID,
			ChallengerID: final.ChallengerID,
			ChallengedID: final.ChallengedID,
			Payload: CompletedPayload{
				WinnerID:        *final.WinnerID,
				ChallengerScore: *final.ChallengerScore,
				ChallengedScore: *final.ChallengedScore,
				BetAmount:       final.BetAmount,
			},
		})

		// Settlement owns moving both escrows to the winner (or back on a
		// tie). Completion stands even if the call fails; that is an
		// operational follow-up, not a rollback.
		if s.Settlement != nil {
			if err := s.Settlement.Settle(final.ID, *final.WinnerID, final.BetAmount, final.BetAmount); err != nil {
				log.Printf("🚨 [CHALLENGE] settlement call failed for %s — manual reconciliation needed: %v", final.ID, err)
			}
		}
	}

	return completed, &final, nil
}

// Expire flips one overdue pending challenge to expired and releases the
// challenger's escrow. Conditional on status, so it is safe to call from
// both the sweep and manual tooling.
func (s *ChallengeService) Expire(challengeID string) (bool, error) {
	ch, err := s.getChallenge(challengeID)
	if err != nil {
		return false, err
	}
	if !ch.IsExpired(time.Now()) {
		return false, nil
	}

	now := time.Now()
	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND status = ? AND expires_at <= ?", ch.ID, models.ChallengeStatusPending, now).
		Update("status", models.ChallengeStatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := s.Wallet.Release(ch.ChallengerID, ch.BetAmount, ch.ID); err != nil {
		log.Printf("🚨 [CHALLENGE] escrow release failed on expiry of %s — manual reconciliation needed: %v", ch.ID, err)
	}

	ch.Status = models.ChallengeStatusExpired
	s.reindex(ch)
	s.Notify.Dispatch(ChallengeEvent{
		Type:         EventChallengeExpired,
		ChallengeID:  ch.ID,
		ChallengerID: ch.ChallengerID,
		ChallengedID: ch.ChallengedID,
		Payload:      ExpiredPayload{ExpiredAt: now},
	})
	return true, nil
}

// --- helpers ---

func (s *ChallengeService) getChallenge(id string) (*models.Challenge, error) {
	var ch models.Challenge
	if err := s.DB.First(&ch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "challenge"}
		}
		return nil, err
	}
	return &ch, nil
}

// gatePending rejects any action on a non-pending or lapsed challenge.
// Expiry is evaluated lazily here instead of by an eager sweep.
func (s *ChallengeService) gatePending(ch *models.Challenge) error {
	if ch.IsExpired(time.Now()) {
		return &StateConflictError{Msg: "challenge has expired", CurrentStatus: models.ChallengeStatusExpired}
	}
	if ch.Status != models.ChallengeStatusPending {
		return &StateConflictError{Msg: "challenge is not pending", CurrentStatus: ch.Status}
	}
	return nil
}

// reindex rewrites the per-user status buckets for both participants.
// Best-effort: the index is derived data, a failed write only degrades
// history queries until the next transition.
func (s *ChallengeService) reindex(ch *models.Challenge) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ?", ch.ID).
			Delete(&models.UserChallengeIndex{}).Error; err != nil {
			return err
		}
		entries := []models.UserChallengeIndex{
			{UserID: ch.ChallengerID, Status: ch.Status, ChallengeID: ch.ID},
			{UserID: ch.ChallengedID, Status: ch.Status, ChallengeID: ch.ID},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entries).Error
	})
	if err != nil {
		log.Printf("⚠️ [CHALLENGE] index update failed for %s (%s): %v", ch.ID, ch.Status, err)
	}
}

// --- HTTP handlers ---

// CreateChallenge handles POST /challenges.
func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		ChallengedID string `json:"challenged_id"`
		GameID       string `json:"game_id"`
		BetAmount    int64  `json:"bet_amount"`
		Message      string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ChallengedID == "" || req.GameID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "challenged_id and game_id are required"})
	}

	ch, err := s.Create(userID, req.ChallengedID, req.GameID, req.BetAmount, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ch)
}

// AcceptChallenge handles POST /challenges/:id/accept.
func (s *ChallengeService) AcceptChallenge(c *fiber.Ctx) error {
	ch, err := s.Accept(c.Params("id"), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ch)
}

// RejectChallenge handles POST /challenges/:id/reject.
func (s *ChallengeService) RejectChallenge(c *fiber.Ctx) error {
	ch, err := s.Reject(c.Params("id"), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ch)
}

// CancelChallenge handles POST /challenges/:id/cancel.
func (s *ChallengeService) CancelChallenge(c *fiber.Ctx) error {
	ch, err := s.Cancel(c.Params("id"), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ch)
}

// StartGameSession handles POST /challenges/:id/session.
func (s *ChallengeService) StartGameSession(c *fiber.Ctx) error {
	session, err := s.StartSession(c.Params("id"), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// SubmitChallengeScore handles POST /challenges/:id/score.
func (s *ChallengeService) SubmitChallengeScore(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Score        *int64 `json:"score"`
		SessionToken string `json:"session_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Score == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "score is required"})
	}

	ch, err := s.SubmitScore(c.Params("id"), userID, *req.Score, req.SessionToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ch)
}

// GetChallenge handles GET /challenges/:id — participants only.
func (s *ChallengeService) GetChallenge(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	ch, err := s.getChallenge(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !ch.Involves(userID) {
		return respondError(c, &AuthorizationError{Msg: "you are not a participant in this challenge"})
	}
	return c.JSON(ch)
}

// GetUserChallenges handles GET /challenges — history for the caller,
// optionally filtered by status, served off the denormalized index.
func (s *ChallengeService) GetUserChallenges(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	query := s.DB.Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var entries []models.UserChallengeIndex
	if err := query.Find(&entries).Error; err != nil {
		log.Printf("DB Error fetching challenge index for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch challenges"})
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ChallengeID)
	}

	challenges := []models.Challenge{}
	if len(ids) > 0 {
		if err := s.DB.Where("id IN ?", ids).Order("created_at DESC").Find(&challenges).Error; err != nil {
			log.Printf("DB Error fetching challenges for %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch challenges"})
		}
	}

	return c.JSON(challenges)
}
