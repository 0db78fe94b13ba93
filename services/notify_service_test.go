package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHubDeliversToBothUsersAndChallengeTopic(t *testing.T) {
	db := newTestDB(t)
	hub := NewHub()
	notify := NewNotifyService(db, hub, RelayConfig{}, nil)

	aliceCh, cancelAlice := hub.Subscribe("user:alice")
	defer cancelAlice()
	bobCh, cancelBob := hub.Subscribe("user:bob")
	defer cancelBob()
	spectatorCh, cancelSpec := hub.Subscribe("challenge:ch-1")
	defer cancelSpec()

	notify.deliver(ChallengeEvent{
		Type:         EventChallengeAccepted,
		ChallengeID:  "ch-1",
		ChallengerID: "alice",
		ChallengedID: "bob",
		Payload:      AcceptedPayload{AcceptedAt: time.Now()},
	})

	for name, ch := range map[string]chan ChallengeEvent{
		"alice": aliceCh, "bob": bobCh, "spectator": spectatorCh,
	} {
		select {
		case ev := <-ch:
			if ev.Type != EventChallengeAccepted || ev.ChallengeID != "ch-1" {
				t.Fatalf("%s got %s on %s", name, ev.Type, ev.ChallengeID)
			}
		default:
			t.Fatalf("%s subscriber got nothing", name)
		}
	}
}

func TestHubDropsWhenSubscriberBufferIsFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("user:slow")
	defer cancel()

	// Publish must never block, even past the channel buffer.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("user:slow", ChallengeEvent{Type: EventChallengeCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer holds %d of %d, want it full with the rest dropped", len(ch), cap(ch))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("user:alice")
	cancel()

	hub.Publish("user:alice", ChallengeEvent{Type: EventChallengeCreated})
	if len(ch) != 0 {
		t.Fatal("event delivered after unsubscribe")
	}
}

func TestRelayEmitCarriesSecretAndEventType(t *testing.T) {
	db := newTestDB(t)

	var gotPath, gotSecret string
	var gotEvent ChallengeEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Relay-Secret")
		if err := json.NewDecoder(r.Body).Decode(&gotEvent); err != nil {
			t.Errorf("decode relay body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	// Hub nil: a stateless deployment, everything rides the relay.
	notify := NewNotifyService(db, nil, RelayConfig{BaseURL: srv.URL, Secret: "hush"}, nil)
	notify.Client = srv.Client()

	notify.deliver(ChallengeEvent{
		Type:         EventChallengeCompleted,
		ChallengeID:  "ch-9",
		ChallengerID: "alice",
		ChallengedID: "bob",
		Payload: CompletedPayload{
			WinnerID:        "bob",
			ChallengerScore: 3,
			ChallengedScore: 8,
			BetAmount:       100,
		},
	})

	if gotPath != "/emit/"+EventChallengeCompleted {
		t.Fatalf("relay path = %q", gotPath)
	}
	if gotSecret != "hush" {
		t.Fatalf("relay secret header = %q", gotSecret)
	}
	if gotEvent.ChallengeID != "ch-9" || gotEvent.Type != EventChallengeCompleted {
		t.Fatalf("relay event = %+v", gotEvent)
	}
}

func TestPushSkippedWithoutToken(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "bob", "Bob", nil)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	push := NewPushClient(srv.URL, "svc-token")
	notify := NewNotifyService(db, NewHub(), RelayConfig{}, push)

	notify.deliver(ChallengeEvent{
		Type:         EventChallengeCreated,
		ChallengeID:  "ch-1",
		ChallengerID: "alice",
		ChallengedID: "bob",
		Payload:      CreatedPayload{GameTitle: "blockstack", BetAmount: 100},
	})

	if called {
		t.Fatal("push sent for a user with no registered token")
	}
}

func TestPushTargetsChallengedOnCreate(t *testing.T) {
	db := newTestDB(t)
	token := "device-token-bob"
	seedUser(t, db, "alice", "Alice", nil)
	seedUser(t, db, "bob", "Bob", &token)

	type sendReq struct {
		To           string            `json:"to"`
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	var got sendReq
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	push := NewPushClient(srv.URL, "svc-token")
	notify := NewNotifyService(db, NewHub(), RelayConfig{}, push)

	notify.deliver(ChallengeEvent{
		Type:         EventChallengeCreated,
		ChallengeID:  "ch-1",
		ChallengerID: "alice",
		ChallengedID: "bob",
		Payload:      CreatedPayload{GameTitle: "blockstack", BetAmount: 2500},
	})

	if got.To != token {
		t.Fatalf("push to = %q, want bob's token", got.To)
	}
	if gotAuth != "Bearer svc-token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if !strings.Contains(got.Notification["body"], "Alice") {
		t.Fatalf("body %q does not name the challenger", got.Notification["body"])
	}
	// Amounts render with grouping for readability.
	if !strings.Contains(got.Notification["body"], "2,500") {
		t.Fatalf("body %q does not format the bet amount", got.Notification["body"])
	}
	if got.Data["challenge_id"] != "ch-1" || got.Data["type"] != EventChallengeCreated {
		t.Fatalf("push data = %v", got.Data)
	}
}

func TestPushContentRouting(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "alice", "Alice", nil)
	seedUser(t, db, "bob", "Bob", nil)
	notify := NewNotifyService(db, nil, RelayConfig{}, nil)

	base := ChallengeEvent{ChallengeID: "ch-1", ChallengerID: "alice", ChallengedID: "bob"}

	cases := []struct {
		name          string
		payload       interface{}
		wantRecipient string
	}{
		{"created goes to challenged", CreatedPayload{GameTitle: "g", BetAmount: 1}, "bob"},
		{"accepted goes to challenger", AcceptedPayload{}, "alice"},
		{"rejected goes to challenger", RejectedPayload{}, "alice"},
		{"cancelled goes to challenged", CancelledPayload{}, "bob"},
		{"score goes to the waiting side", ScoreSubmittedPayload{UserID: "alice", Score: 7}, "bob"},
		{"loss goes to the loser", CompletedPayload{WinnerID: "bob", BetAmount: 100}, "alice"},
		{"tie goes to the challenger leg", CompletedPayload{WinnerID: "tie"}, "alice"},
	}
	for _, tc := range cases {
		ev := base
		ev.Payload = tc.payload
		recipient, title, body := notify.pushContent(ev)
		if recipient != tc.wantRecipient {
			t.Errorf("%s: recipient = %q, want %q", tc.name, recipient, tc.wantRecipient)
		}
		if title == "" || body == "" {
			t.Errorf("%s: empty title/body", tc.name)
		}
	}

	// Expiry has no push leg, only the real-time channel.
	ev := base
	ev.Payload = ExpiredPayload{ExpiredAt: time.Now()}
	if recipient, _, _ := notify.pushContent(ev); recipient != "" {
		t.Errorf("expired event pushed to %q, want nobody", recipient)
	}
}
