package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"emrun/internal/config"
)

const maxErrorBodyBytes = 1024

// Headers set on every notification post.
const (
	HeaderEvent   = "X-Emrun-Event"
	HeaderSession = "X-Emrun-Session"
)

var userAgent = "emrun/" + config.Version

// endpoint posts JSON documents to one URL with retries.
type endpoint struct {
	channel string
	url     string
	client  *http.Client
	retry   retryPolicy
}

func newEndpoint(channel, rawURL string, client *http.Client) endpoint {
	if client == nil {
		client = http.DefaultClient
	}
	return endpoint{
		channel: channel,
		url:     strings.TrimSpace(rawURL),
		client:  client,
		retry:   defaultRetryPolicy,
	}
}

func (e endpoint) post(ctx context.Context, payload Payload, doc any) error {
	if e.url == "" {
		return fmt.Errorf("%s endpoint is empty", e.channel)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.channel, err)
	}

	resp, err := e.retry.do(ctx, e.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set(HeaderEvent, payload.Event)
		if payload.SessionID != "" {
			req.Header.Set(HeaderSession, payload.SessionID)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("send %s request: %w", e.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s request failed with status %d: %s", e.channel, resp.StatusCode, msg)
	}
	return nil
}

// WebhookSender posts the Payload itself as JSON.
type WebhookSender struct {
	endpoint
}

func NewWebhookSender(webhookURL string, client *http.Client) *WebhookSender {
	return &WebhookSender{endpoint: newEndpoint("webhook", webhookURL, client)}
}

func (s *WebhookSender) Name() string {
	return s.channel
}

func (s *WebhookSender) Send(ctx context.Context, payload Payload) error {
	return s.post(ctx, payload, payload)
}
