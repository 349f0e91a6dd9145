package notify

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	apnsProductionHost = "https://api.push.apple.com"
	apnsSandboxHost    = "https://api.sandbox.push.apple.com"
)

// APNSClient sends alerts directly to Apple's push service using an ES256
// provider token minted per send.
type APNSClient struct {
	key      *ecdsa.PrivateKey
	keyID    string
	teamID   string
	bundleID string
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// NewAPNSClient loads the .p8 signing key and prepares a client for the
// given environment ("sandbox" or "production").
func NewAPNSClient(keyPath, keyID, teamID, bundleID, environment string) (*APNSClient, error) {
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read apns key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse apns key: %w", err)
	}

	endpoint := apnsSandboxHost
	if environment == "production" {
		endpoint = apnsProductionHost
	}

	return &APNSClient{
		key:      key,
		keyID:    keyID,
		teamID:   teamID,
		bundleID: bundleID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}, nil
}

// providerToken mints the short-lived JWT Apple expects in the
// authorization header. Apple rejects tokens older than an hour, so one per
// send keeps the client stateless.
func (c *APNSClient) providerToken() (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.teamID,
		"iat": c.now().Unix(),
	})
	tok.Header["kid"] = c.keyID
	return tok.SignedString(c.key)
}

// Send pushes one alert to the device token. It reports false on any
// failure; APNs delivery never blocks job completion.
func (c *APNSClient) Send(ctx context.Context, token, title, body string, badge int) bool {
	bearer, err := c.providerToken()
	if err != nil {
		log.Printf("notify: sign apns token: %v", err)
		return false
	}

	encoded, err := json.Marshal(buildPayload(title, body, badge))
	if err != nil {
		log.Printf("notify: encode apns payload: %v", err)
		return false
	}

	url := c.endpoint + "/3/device/" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		log.Printf("notify: build apns request: %v", err)
		return false
	}
	req.Header.Set("Authorization", "bearer "+bearer)
	req.Header.Set("apns-topic", c.bundleID)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("notify: apns request failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("notify: apns rejected push (status %d): %s", resp.StatusCode, detail)
		return false
	}
	return true
}
