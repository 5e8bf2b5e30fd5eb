package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"newsbrief/internal/model"
)

const sendTimeout = 10 * time.Second

// DeliveryError reports a failed email send for one recipient.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver to %s: %v", e.To, e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }

// Client sends digests through the email provider's HTTP API:
// POST {endpoint}/emails with {from, to, subject, text}, returning
// the provider's delivery id.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

func (c *Client) Send(ctx context.Context, email model.Email) (string, error) {
	blob, err := json.Marshal(struct {
		From    string `json:"from"`
		To      string `json:"to"`
		Subject string `json:"subject"`
		Text    string `json:"text"`
	}{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		Text:    email.Text,
	})
	if err != nil {
		return "", &DeliveryError{To: email.To, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/emails", bytes.NewReader(blob))
	if err != nil {
		return "", &DeliveryError{To: email.To, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &DeliveryError{To: email.To, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &DeliveryError{To: email.To, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var parsed struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &DeliveryError{To: email.To, Err: err}
	}

	if parsed.ID == "" {
		return "", &DeliveryError{To: email.To, Err: errors.New("missing delivery id")}
	}

	return parsed.ID, nil
}
