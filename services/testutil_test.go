package services

import (
	"testing"
	"time"

	"game-challenge-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Game{},
		&models.Challenge{},
		&models.UserChallengeIndex{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.GameSession{},
		&models.ChallengeInteraction{},
		&models.ChallengeMessage{},
		&models.ChallengeReaction{},
		&models.ChallengeUser{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedWallet(t *testing.T, db *gorm.DB, userID string, available int64) {
	t.Helper()
	w := models.Wallet{ID: uuid.NewString(), UserID: userID, AvailableBalance: available}
	if err := db.Create(&w).Error; err != nil {
		t.Fatalf("seed wallet for %s: %v", userID, err)
	}
}

func seedGame(t *testing.T, db *gorm.DB, title string) *models.Game {
	t.Helper()
	g := models.Game{
		ID:      uuid.NewString(),
		Title:   title,
		Slug:    title,
		PlayURL: "https://games.example/" + title,
		Active:  true,
	}
	if err := db.Create(&g).Error; err != nil {
		t.Fatalf("seed game %s: %v", title, err)
	}
	return &g
}

func seedUser(t *testing.T, db *gorm.DB, externalID, username string, pushToken *string) {
	t.Helper()
	u := models.ChallengeUser{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Username:       username,
		PushToken:      pushToken,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user %s: %v", externalID, err)
	}
}

// newTestEngine wires a full challenge service against the in-memory DB:
// local hub, no relay, no mobile push, no settlement collaborator.
func newTestEngine(t *testing.T, db *gorm.DB) *ChallengeService {
	t.Helper()
	wallet := NewWalletService(db)
	sessions := NewSessionService(db)
	guard := NewChallengeGuard(db)
	notify := NewNotifyService(db, NewHub(), RelayConfig{}, nil)
	return NewChallengeService(db, wallet, sessions, guard, notify, nil, 1, 1_000_000)
}

func acceptedChallenge(t *testing.T, db *gorm.DB, svc *ChallengeService, challenger, challenged string, bet int64) *models.Challenge {
	t.Helper()
	game := seedGame(t, db, "blockstack-"+uuid.NewString()[:8])
	ch, err := svc.Create(challenger, challenged, game.ID, bet, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch, err = svc.Accept(ch.ID, challenged)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return ch
}

func submitViaSession(t *testing.T, svc *ChallengeService, challengeID, userID string, score int64) (*models.Challenge, error) {
	t.Helper()
	session, err := svc.StartSession(challengeID, userID)
	if err != nil {
		t.Fatalf("start session for %s: %v", userID, err)
	}
	return svc.SubmitScore(challengeID, userID, score, session.Token)
}

func mustWallet(t *testing.T, svc *WalletService, userID string) *models.Wallet {
	t.Helper()
	w, err := svc.GetWallet(userID)
	if err != nil {
		t.Fatalf("get wallet %s: %v", userID, err)
	}
	return w
}

func within(tm, want time.Time, d time.Duration) bool {
	diff := tm.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d
}
