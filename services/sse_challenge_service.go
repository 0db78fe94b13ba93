// services/sse_challenge_service.go
package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamChallengeEventsSSE streams the authenticated user's challenge
// events over SSE, fed by the local hub. Only available when the service
// runs with an in-process hub; stateless deployments use the relay
// instead.
func (n *NotifyService) StreamChallengeEventsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	if n.Hub == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "real-time streaming is handled by the push relay on this deployment",
		})
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	events, unsubscribe := n.Hub.Subscribe("user:" + userID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
