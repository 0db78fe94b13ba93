package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"game-challenge-system/models"
)

func TestStartIssuesBoundToken(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	session, err := svc.Start("ch-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(session.Token) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(session.Token))
	}
	if session.ChallengeID != "ch-1" || session.UserID != "alice" {
		t.Fatalf("session bound to (%s, %s)", session.ChallengeID, session.UserID)
	}
	if !within(session.ExpiresAt, time.Now().Add(models.GameSessionTTL), 5*time.Second) {
		t.Fatalf("expiry %v not ~%v from now", session.ExpiresAt, models.GameSessionTTL)
	}

	if _, err := svc.Validate(session.Token, "ch-1", "alice"); err != nil {
		t.Fatalf("validate fresh token: %v", err)
	}
}

func TestStartReplacesPreviousSession(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	first, _ := svc.Start("ch-1", "alice")
	second, err := svc.Start("ch-1", "alice")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	if _, err := svc.Validate(first.Token, "ch-1", "alice"); err == nil {
		t.Fatal("old token still valid after restart")
	}
	if _, err := svc.Validate(second.Token, "ch-1", "alice"); err != nil {
		t.Fatalf("new token invalid: %v", err)
	}
}

func TestValidateDistinguishesFailures(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	session, _ := svc.Start("ch-1", "alice")

	cases := []struct {
		name        string
		token       string
		challengeID string
		userID      string
		wantSubstr  string
	}{
		{"absent token", "", "ch-1", "alice", "no game session token"},
		{"unknown token", strings.Repeat("ab", 32), "ch-1", "alice", "not found"},
		{"wrong user", session.Token, "ch-1", "bob", "does not match"},
		{"wrong challenge", session.Token, "ch-2", "alice", "does not match"},
	}
	for _, tc := range cases {
		_, err := svc.Validate(tc.token, tc.challengeID, tc.userID)
		var sessErr *SessionInvalidError
		if !errors.As(err, &sessErr) {
			t.Fatalf("%s: err = %v, want SessionInvalidError", tc.name, err)
		}
		if !strings.Contains(sessErr.Reason, tc.wantSubstr) {
			t.Fatalf("%s: reason %q missing %q", tc.name, sessErr.Reason, tc.wantSubstr)
		}
		if !strings.Contains(sessErr.Reason, "start a new game session") {
			t.Fatalf("%s: reason %q does not tell caller to restart", tc.name, sessErr.Reason)
		}
	}
}

func TestValidateExpiredToken(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	session, _ := svc.Start("ch-1", "alice")
	db.Model(&models.GameSession{}).Where("token = ?", session.Token).
		Update("expires_at", time.Now().Add(-time.Minute))

	_, err := svc.Validate(session.Token, "ch-1", "alice")
	var sessErr *SessionInvalidError
	if !errors.As(err, &sessErr) {
		t.Fatalf("err = %v, want SessionInvalidError", err)
	}
	if !strings.Contains(sessErr.Reason, "expired") {
		t.Fatalf("reason %q, want mention of expiry", sessErr.Reason)
	}
}

func TestConsumeMakesTokenSingleUse(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db)

	session, _ := svc.Start("ch-1", "alice")
	if err := svc.Consume(session.Token); err != nil {
		t.Fatalf("consume: %v", err)
	}

	_, err := svc.Validate(session.Token, "ch-1", "alice")
	var sessErr *SessionInvalidError
	if !errors.As(err, &sessErr) {
		t.Fatalf("validate after consume: err = %v, want SessionInvalidError", err)
	}
}
