package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// RelayClient forwards notifications to a shared relay server that holds
// the APNs credentials, for deployments without their own Apple key.
type RelayClient struct {
	url    string
	client *http.Client
}

func NewRelayClient(url string) *RelayClient {
	return &RelayClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type relayRequest struct {
	DeviceToken string `json:"deviceToken"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Badge       int    `json:"badge"`
}

// Send posts the notification to the relay. It reports false on any
// failure.
func (c *RelayClient) Send(ctx context.Context, token, title, body string, badge int) bool {
	encoded, err := json.Marshal(relayRequest{
		DeviceToken: token,
		Title:       title,
		Body:        body,
		Badge:       badge,
	})
	if err != nil {
		log.Printf("notify: encode relay payload: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encoded))
	if err != nil {
		log.Printf("notify: build relay request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("notify: relay request failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("notify: relay rejected push (status %d): %s", resp.StatusCode, detail)
		return false
	}
	return true
}
