// services/push_client.go
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

// PushClient talks to the mobile push collaborator. Errors are returned
// to the dispatcher for logging only — a push failure never propagates
// into a challenge transition.
type PushClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPushClient(baseURL, token string) *PushClient {
	return &PushClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send delivers one notification to a device token.
func (c *PushClient) Send(token, title, body string, data map[string]string) error {
	reqBody := map[string]interface{}{
		"to": token,
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
		"data": data,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/send", c.BaseURL), bytes.NewBuffer(jsonData))
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

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("PushService /send returned %d: %s", resp.StatusCode, string(respBody))
		return fmt.Errorf("push send failed: %d", resp.StatusCode)
	}
	return nil
}
