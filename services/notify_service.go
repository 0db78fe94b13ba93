// services/notify_service.go
package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"game-challenge-system/models"
	"game-challenge-system/utils"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"
)

// Challenge event types, one per state machine transition.
const (
	EventChallengeCreated   = "challenge.created"
	EventChallengeAccepted  = "challenge.accepted"
	EventChallengeRejected  = "challenge.rejected"
	EventChallengeCancelled = "challenge.cancelled"
	EventChallengeExpired   = "challenge.expired"
	EventScoreSubmitted     = "challenge.score_submitted"
	EventChallengeCompleted = "challenge.completed"
)

// Per-event payload variants. Keeping these a closed, typed set means a
// new transition cannot ship without deciding what its fan-out carries.

type CreatedPayload struct {
	GameID    string    `json:"game_id"`
	GameTitle string    `json:"game_title"`
	BetAmount int64     `json:"bet_amount"`
	Message   string    `json:"message,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AcceptedPayload struct {
	AcceptedAt time.Time `json:"accepted_at"`
}

type RejectedPayload struct {
	RejectedAt time.Time `json:"rejected_at"`
}

type CancelledPayload struct {
	CancelledAt time.Time `json:"cancelled_at"`
}

type ExpiredPayload struct {
	ExpiredAt time.Time `json:"expired_at"`
}

type ScoreSubmittedPayload struct {
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

type CompletedPayload struct {
	WinnerID        string `json:"winner_id"`
	ChallengerScore int64  `json:"challenger_score"`
	ChallengedScore int64  `json:"challenged_score"`
	BetAmount       int64  `json:"bet_amount"`
}

// ChallengeEvent is what every transition fans out: addressing fields plus
// the transition-specific payload.
type ChallengeEvent struct {
	Type         string      `json:"type"`
	ChallengeID  string      `json:"challenge_id"`
	ChallengerID string      `json:"challenger_id"`
	ChallengedID string      `json:"challenged_id"`
	Payload      interface{} `json:"payload"`
	EmittedAt    time.Time   `json:"emitted_at"`
}

// Hub is the local real-time channel: in-process pub/sub addressed by
// per-user and per-challenge topics. Slow subscribers drop events rather
// than block a publisher — the challenge row is ground truth, not the
// event stream.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan ChallengeEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan ChallengeEvent]struct{})}
}

// Subscribe registers a buffered channel on a topic and returns it with
// an unsubscribe func.
func (h *Hub) Subscribe(topic string) (chan ChallengeEvent, func()) {
	ch := make(chan ChallengeEvent, 16)

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan ChallengeEvent]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if set, ok := h.subs[topic]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, topic)
			}
		}
		h.mu.Unlock()
	}
}

// Publish delivers to every subscriber of the topic without blocking.
func (h *Hub) Publish(topic string, ev ChallengeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full — drop, client reconciles via fetch.
		}
	}
}

// RelayConfig is the push-hosting relay target for stateless deployments.
// Set once at startup and injected, never mutated afterwards.
type RelayConfig struct {
	BaseURL string
	Secret  string
}

func (r RelayConfig) Enabled() bool { return r.BaseURL != "" }

// NotifyService fans every successful transition out to the configured
// real-time channel (local hub or HTTP relay) and to mobile push. All of
// it is fire-and-forget: failures are logged and never reach the caller.
type NotifyService struct {
	DB     *gorm.DB
	Hub    *Hub // nil under a stateless deployment
	Relay  RelayConfig
	Push   *PushClient // nil disables mobile push
	Client *http.Client

	amounts *message.Printer
}

func NewNotifyService(db *gorm.DB, hub *Hub, relay RelayConfig, push *PushClient) *NotifyService {
	return &NotifyService{
		DB:      db,
		Hub:     hub,
		Relay:   relay,
		Push:    push,
		Client:  utils.HTTPClient,
		amounts: message.NewPrinter(language.English),
	}
}

// Dispatch runs the fan-out in the background and returns immediately.
func (n *NotifyService) Dispatch(ev ChallengeEvent) {
	ev.EmittedAt = time.Now()
	go n.deliver(ev)
}

func (n *NotifyService) deliver(ev ChallengeEvent) {
	if n.Hub != nil {
		n.Hub.Publish("user:"+ev.ChallengerID, ev)
		n.Hub.Publish("user:"+ev.ChallengedID, ev)
		n.Hub.Publish("challenge:"+ev.ChallengeID, ev)
	} else if n.Relay.Enabled() {
		if err := n.relayEmit(ev); err != nil {
			log.Printf("⚠️ [NOTIFY] relay emit failed for %s on %s: %v", ev.Type, ev.ChallengeID, err)
		}
	}

	if n.Push != nil {
		n.sendPush(ev)
	}
}

func (n *NotifyService) relayEmit(ev ChallengeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/emit/%s", n.Relay.BaseURL, ev.Type)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Relay-Secret", n.Relay.Secret)

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned %d", resp.StatusCode)
	}
	return nil
}

// sendPush resolves the recipient's push token and display names, then
// hands off to the mobile push collaborator. No token registered means a
// silent skip.
func (n *NotifyService) sendPush(ev ChallengeEvent) {
	recipientID, title, body := n.pushContent(ev)
	if recipientID == "" {
		return
	}

	var recipient models.ChallengeUser
	if err := n.DB.Where("external_user_id = ?", recipientID).First(&recipient).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ [NOTIFY] push recipient lookup failed for %s: %v", recipientID, err)
		}
		return
	}
	if recipient.PushToken == nil || *recipient.PushToken == "" {
		return
	}

	data := map[string]string{
		"type":         ev.Type,
		"challenge_id": ev.ChallengeID,
	}
	if err := n.Push.Send(*recipient.PushToken, title, body, data); err != nil {
		log.Printf("⚠️ [NOTIFY] push send failed for %s (%s): %v", recipientID, ev.Type, err)
	}
}

// pushContent picks who gets the mobile notification for each transition
// and what it says. Empty recipient means no push for that event.
func (n *NotifyService) pushContent(ev ChallengeEvent) (recipientID, title, body string) {
	challengerName := n.displayName(ev.ChallengerID)
	challengedName := n.displayName(ev.ChallengedID)

	switch p := ev.Payload.(type) {
	case CreatedPayload:
		return ev.ChallengedID, "New challenge!",
			n.amounts.Sprintf("%s challenged you to %s for %d coins", challengerName, p.GameTitle, p.BetAmount)
	case AcceptedPayload:
		return ev.ChallengerID, "Challenge accepted",
			fmt.Sprintf("%s accepted your challenge — game on!", challengedName)
	case RejectedPayload:
		return ev.ChallengerID, "Challenge declined",
			fmt.Sprintf("%s declined your challenge. Your bet was returned.", challengedName)
	case CancelledPayload:
		return ev.ChallengedID, "Challenge cancelled",
			fmt.Sprintf("%s cancelled the challenge.", challengerName)
	case ScoreSubmittedPayload:
		opponent := ev.ChallengerID
		name := challengedName
		if p.UserID == ev.ChallengerID {
			opponent = ev.ChallengedID
			name = challengerName
		}
		return opponent, "Opponent finished",
			n.amounts.Sprintf("%s scored %d — your move!", name, p.Score)
	case CompletedPayload:
		if p.WinnerID == models.WinnerTie {
			// Both get told on a tie; challenger picked here, the second
			// leg rides the real-time channel.
			return ev.ChallengerID, "It's a tie!",
				n.amounts.Sprintf("You both scored %d. Bets returned.", p.ChallengerScore)
		}
		loser := ev.ChallengerID
		if p.WinnerID == ev.ChallengerID {
			loser = ev.ChallengedID
		}
		return loser, "Challenge over",
			n.amounts.Sprintf("You lost %d coins. Rematch?", p.BetAmount)
	}
	return "", "", ""
}

func (n *NotifyService) displayName(userID string) string {
	var u models.ChallengeUser
	if err := n.DB.Where("external_user_id = ?", userID).First(&u).Error; err != nil {
		return "Your opponent"
	}
	return u.Username
}
