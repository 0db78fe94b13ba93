// services/settlement_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// SettlementClient is the boundary to the settlement collaborator: invoked
// exactly once when a challenge completes, with the winner and both escrow
// amounts. Moving the escrow to the winner (or back to both on a tie) is
// its job, not this service's.
type SettlementClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewSettlementClient(baseURL, token string) *SettlementClient {
	return &SettlementClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Settle reports a completed challenge for escrow payout.
func (c *SettlementClient) Settle(challengeID, winnerID string, challengerEscrow, challengedEscrow int64) error {
	reqBody := map[string]interface{}{
		"challenge_id":      challengeID,
		"winner_id":         winnerID,
		"challenger_escrow": challengerEscrow,
		"challenged_escrow": challengedEscrow,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/settlements", c.BaseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("SettlementService returned %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("settlement failed: %d", resp.StatusCode)
	}
	return nil
}
