// client.go
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"messenger-console/graph"
)

// Client talks to the companion token/subscription store. The store exposes
// a single form-encoded POST endpoint dispatched on an "action" field; its
// responses are opaque strings or JSON that must be parsed defensively, and
// an empty body means "not found" rather than an error.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

// GetToken returns the stored long-lived token, or "" when the store has
// none.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	body, err := c.post(ctx, url.Values{"action": {"get_token"}})
	if err != nil {
		return "", err
	}
	return parseTokenBody(body), nil
}

// ExchangeToken swaps a short-lived token for a long-lived one and stores it
// backend-side.
func (c *Client) ExchangeToken(ctx context.Context, shortLivedToken string) (string, error) {
	body, err := c.post(ctx, url.Values{
		"action":       {"change_token"},
		"access-token": {shortLivedToken},
	})
	if err != nil {
		return "", err
	}

	token := parseTokenBody(body)
	if token == "" {
		return "", fmt.Errorf("token store returned no long-lived token")
	}
	return token, nil
}

// GetSubscription returns the page the store believes is subscribed, or nil
// when it knows of none.
func (c *Client) GetSubscription(ctx context.Context) (*graph.Page, error) {
	body, err := c.post(ctx, url.Values{"action": {"get_subscription"}})
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return nil, nil
	}

	// The page arrives either wrapped in the response envelope or as a bare
	// JSON object.
	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Response != "" {
		raw = envelope.Response
	}

	var page graph.Page
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		log.Printf("⚠️ Could not parse stored subscription %q: %v", raw, err)
		return nil, fmt.Errorf("error parsing stored subscription: %w", err)
	}
	if page.ID == "" {
		return nil, nil
	}
	return &page, nil
}

// SubscribePage records the page as subscribed backend-side.
func (c *Client) SubscribePage(ctx context.Context, page graph.Page) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("error encoding page: %v", err)
	}
	_, err = c.post(ctx, url.Values{
		"action": {"subscribe_page"},
		"page":   {string(data)},
	})
	return err
}

// UnsubscribePage clears the stored subscription.
func (c *Client) UnsubscribePage(ctx context.Context) error {
	_, err := c.post(ctx, url.Values{"action": {"unsubscribe_page"}})
	return err
}

func (c *Client) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating token store request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error reaching token store: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading token store response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token store error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parseTokenBody accepts either a bare string or the {"response": "..."}
// JSON envelope the store historically used. Anything unparseable is treated
// as a bare value.
func parseTokenBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		return envelope.Response
	}

	var quoted string
	if err := json.Unmarshal(body, &quoted); err == nil {
		return quoted
	}
	return trimmed
}
