// workers/deposit_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"game-challenge-system/models"
	"game-challenge-system/services"

	"gorm.io/gorm"
)

// SettledDeposit mirrors the payments service's settled-deposit payload.
type SettledDeposit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"` // minor units
	SettledAt time.Time `json:"settled_at"`
}

// DepositSyncClient polls the payments service for settled deposits and
// credits them into the local wallet ledger. Deposit/withdrawal rails stay
// external; only the resulting balance lands here.
type DepositSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
	Wallet     *services.WalletService
}

func NewDepositSyncClient(db *gorm.DB, wallet *services.WalletService) *DepositSyncClient {
	baseURL := os.Getenv("PAYMENTS_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("PAYMENTS_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("CHALLENGE_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("CHALLENGE_SERVICE_TOKEN environment variable is required for deposit sync")
	}

	return &DepositSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		Wallet:  wallet,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *DepositSyncClient) GetSettledDeposits(ctx context.Context, since time.Time) ([]SettledDeposit, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/deposits", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	q.Set("status", "settled")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call payments service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("payments service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Deposits []SettledDeposit `json:"deposits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode payments service response: %w", err)
	}

	return response.Deposits, nil
}

// PollDeposits credits settled deposits into local wallets. Credits are
// keyed on the deposit id, so replaying a window never double-credits.
func PollDeposits(ctx context.Context, client *DepositSyncClient, pollInterval time.Duration) {
	log.Println("Starting deposit polling…")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Deposit polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			deposits, err := client.GetSettledDeposits(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling deposits: %v", err)
				continue
			}

			if len(deposits) == 0 {
				continue
			}

			var credited, failed int
			for _, dep := range deposits {
				var existing int64
				if err := client.DB.Model(&models.WalletTransaction{}).
					Where("kind = ? AND reference = ?", models.TxKindDeposit, dep.ID).
					Count(&existing).Error; err != nil {
					failed++
					log.Printf("❌ Dedupe check failed for deposit %s: %v", dep.ID, err)
					continue
				}
				if existing > 0 {
					continue // already credited in an earlier window
				}

				if err := client.Wallet.Credit(dep.UserID, dep.Amount, models.TxKindDeposit,
					"deposit settled via payments service", dep.ID); err != nil {
					failed++
					log.Printf("❌ Failed to credit deposit %s for user %s: %v", dep.ID, dep.UserID, err)
					continue
				}
				credited++
			}

			if failed > 0 {
				// Retry the same window next tick so failures are not lost.
				log.Printf("⚠️ Credited %d deposit(s), %d failed — window will be retried", credited, failed)
				continue
			}

			lastSyncTime = logTime
			log.Printf("✅ Credited %d deposit(s) into wallets.", credited)
		}
	}
}
