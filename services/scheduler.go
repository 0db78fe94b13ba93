// services/scheduler.go
package services

import (
	"log"
	"time"

	"game-challenge-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartExpirySweep runs the optional background sweep over lapsed pending
// challenges. Lazy per-access expiry checks remain authoritative — the
// sweep only exists so stranded escrow gets released without waiting for
// someone to touch the challenge.
func (s *ChallengeService) StartExpirySweep() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: expire lapsed pending challenges
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var challenges []models.Challenge
			now := time.Now()
			err := s.DB.Where("status = ? AND expires_at <= ?", models.ChallengeStatusPending, now).
				Find(&challenges).Error
			if err != nil {
				log.Printf("[Sweep] DB error: %v", err)
				return
			}

			for _, ch := range challenges {
				expired, err := s.Expire(ch.ID)
				if err != nil {
					log.Printf("[Sweep] Failed to expire challenge %s: %v", ch.ID, err)
				} else if expired {
					log.Printf("⏰ Expired challenge %s, released %d to %s", ch.ID, ch.BetAmount, ch.ChallengerID)
				}
			}
		}),
	)
}
