package services

import (
	"testing"

	"game-challenge-system/models"
)

func TestGuardBlocksReversedDirection(t *testing.T) {
	db := newTestDB(t)
	svc := newTestEngine(t, db)
	seedWallet(t, db, "alice", 1000)
	seedWallet(t, db, "bob", 1000)
	game := seedGame(t, db, "blockstack")

	first, err := svc.Create("alice", "bob", game.ID, 100, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Bob challenging Alice back on the same game is the same pending pair.
	conflict, err := svc.Guard.CheckOverlap("bob", "alice", game.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if conflict == nil || conflict.ExistingChallengeID != first.ID {
		t.Fatalf("conflict = %+v, want block pointing at %s", conflict, first.ID)
	}
}

func TestGuardIgnoresOtherOpponents(t *testing.T) {
	db := newTestDB(t)
	svc := newTestEngine(t, db)
	seedWallet(t, db, "alice", 1000)
	game := seedGame(t, db, "blockstack")

	if _, err := svc.Create("alice", "bob", game.ID, 100, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	conflict, err := svc.Guard.CheckOverlap("alice", "carol", game.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if conflict != nil {
		t.Fatalf("conflict = %+v, want none for a different opponent", conflict)
	}
}

func TestGuardUnblocksOncePlayBegins(t *testing.T) {
	db := newTestDB(t)
	svc := newTestEngine(t, db)
	seedWallet(t, db, "alice", 1000)
	seedWallet(t, db, "bob", 1000)

	ch := acceptedChallenge(t, db, svc, "alice", "bob", 100)

	conflict, err := svc.Guard.CheckOverlap("alice", "bob", "any-game")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if conflict == nil {
		t.Fatal("unplayed accepted challenge did not block")
	}

	// One submitted score means play is underway; a fresh challenge for a
	// different matchup is allowed again.
	if _, err := submitViaSession(t, svc, ch.ID, "alice", 12); err != nil {
		t.Fatalf("submit: %v", err)
	}
	conflict, err = svc.Guard.CheckOverlap("alice", "bob", "any-game")
	if err != nil {
		t.Fatalf("check after score: %v", err)
	}
	if conflict != nil {
		t.Fatalf("conflict = %+v, want none once a score is in", conflict)
	}
}

func TestGuardSkipsStaleIndexRows(t *testing.T) {
	db := newTestDB(t)
	guard := NewChallengeGuard(db)

	// An index row pointing at a deleted challenge must not block or error.
	db.Create(&models.UserChallengeIndex{
		UserID:      "alice",
		Status:      models.ChallengeStatusPending,
		ChallengeID: "gone",
	})

	conflict, err := guard.CheckOverlap("alice", "bob", "g1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if conflict != nil {
		t.Fatalf("conflict = %+v, want stale row skipped", conflict)
	}
}
