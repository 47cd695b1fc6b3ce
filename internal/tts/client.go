// Package tts relays text to a local text-to-speech server. The
// subsystem treats speech as an external concern: we post the text and
// surface any failure, nothing more.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client posts speak requests to one TTS endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	reqTimeout time.Duration
}

// NewClient builds a client for the given base URL. The underlying
// http.Client carries no timeout; every request gets a context deadline.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		reqTimeout: defaultTimeout,
	}
}

// WithTimeout overrides the per-request deadline. Zero disables it.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.reqTimeout = d
	return c
}

type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Speak posts text to the TTS server's /speak endpoint. A non-2xx
// response is an error carrying the server's reply (truncated).
func (c *Client) Speak(ctx context.Context, text, voice string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("tts: empty text")
	}
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	body, _ := json.Marshal(speakRequest{Text: text, Voice: voice})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speak", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("tts request: %w", ctx.Err())
		}
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tts server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Healthy reports whether the TTS server answers on /healthz.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
