// Package social posts round outcomes to a third-party activity feed. Every
// call is best-effort: failures are logged and swallowed, never surfaced to
// the round lifecycle.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.usetapestry.dev/api/v1"

// Client talks to the feed API. With no API key configured it is a no-op.
type Client struct {
	baseURL   string
	apiKey    string
	namespace string
	http      *http.Client
	log       zerolog.Logger
}

// NewClient builds a feed client. apiKey may be empty.
func NewClient(apiKey, namespace string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		apiKey:    apiKey,
		namespace: namespace,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("component", "social").Logger(),
	}
}

// IsConfigured reports whether calls will actually hit the feed API.
func (c *Client) IsConfigured() bool {
	return c.apiKey != "" && c.namespace != ""
}

// request POSTs a JSON body to one endpoint and decodes the JSON reply into a
// generic map. A nil map with nil error means the call was skipped or the API
// rejected it; callers treat both the same.
func (c *Client) request(ctx context.Context, endpoint string, body any) (map[string]any, error) {
	if !c.IsConfigured() {
		c.log.Debug().Str("endpoint", endpoint).Msg("feed api key missing, skipping call")
		return nil, nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal feed request: %w", err)
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()
	logURL := c.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Str("url", logURL).Err(err).Msg("feed network error (non-blocking)")
		return nil, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Str("url", logURL).Int("status", resp.StatusCode).
			Str("response", string(raw)).Msg("feed api error (non-blocking)")
		return nil, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, nil
	}
	return decoded, nil
}

// findOrCreateProfile resolves the feed profile for a wallet address.
func (c *Client) findOrCreateProfile(ctx context.Context, walletAddress string) (string, error) {
	username := walletAddress
	if len(walletAddress) > 8 {
		username = walletAddress[:4] + "..." + walletAddress[len(walletAddress)-4:]
	}

	resp, err := c.request(ctx, "/profiles", map[string]any{
		"username":      username,
		"walletAddress": walletAddress,
		"blockchain":    "solana",
		"execution":     "FAST_UNCONFIRMED",
	})
	if err != nil || resp == nil {
		return "", err
	}
	id, _ := resp["id"].(string)
	return id, nil
}
