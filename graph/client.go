// client.go
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// Client talks to the Facebook Graph API. Every call carries a user- or
// page-scoped access token as a query parameter, the way the platform
// expects it.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Me validates a token by resolving the identity behind it.
func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	params := url.Values{
		"fields":       {"id,name"},
		"access_token": {token},
	}

	var identity Identity
	if err := c.do(ctx, "GET", "/me", params, &identity); err != nil {
		return nil, err
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("incomplete user data from Facebook")
	}
	return &identity, nil
}

// Accounts lists the Pages the token's user administers.
func (c *Client) Accounts(ctx context.Context, userToken string) ([]Page, error) {
	params := url.Values{
		"fields":       {"name,id,access_token,picture{url}"},
		"access_token": {userToken},
	}

	var result struct {
		Data []Page `json:"data"`
	}
	if err := c.do(ctx, "GET", "/me/accounts", params, &result); err != nil {
		return nil, fmt.Errorf("error fetching pages: %w", err)
	}
	return result.Data, nil
}

// SubscribedApps returns the apps currently receiving the page's events.
// An empty slice means the page is not subscribed.
func (c *Client) SubscribedApps(ctx context.Context, pageToken string) ([]SubscribedApp, error) {
	params := url.Values{"access_token": {pageToken}}

	var result struct {
		Data []SubscribedApp `json:"data"`
	}
	if err := c.do(ctx, "GET", "/me/subscribed_apps", params, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Subscribe wires the app to the page's messages and messaging_postbacks.
func (c *Client) Subscribe(ctx context.Context, pageToken string) error {
	params := url.Values{
		"subscribed_fields": {"messages,messaging_postbacks"},
		"access_token":      {pageToken},
	}
	return c.do(ctx, "POST", "/me/subscribed_apps", params, nil)
}

// Unsubscribe removes the app subscription from the page.
func (c *Client) Unsubscribe(ctx context.Context, pageToken string) error {
	params := url.Values{"access_token": {pageToken}}
	return c.do(ctx, "DELETE", "/me/subscribed_apps", params, nil)
}

// DeclinedPermissions returns the permissions the user refused during login.
func (c *Client) DeclinedPermissions(ctx context.Context, token string) ([]string, error) {
	params := url.Values{"access_token": {token}}

	var result struct {
		Data []Permission `json:"data"`
	}
	if err := c.do(ctx, "GET", "/me/permissions", params, &result); err != nil {
		return nil, err
	}

	var declined []string
	for _, permission := range result.Data {
		if permission.Status == "declined" {
			declined = append(declined, permission.Permission)
		}
	}
	return declined, nil
}

// Conversations lists the subscribed page's conversation threads.
func (c *Client) Conversations(ctx context.Context, pageToken string) ([]Conversation, error) {
	params := url.Values{
		"fields":       {"id,senders"},
		"access_token": {pageToken},
	}

	var result struct {
		Data []Conversation `json:"data"`
	}
	if err := c.do(ctx, "GET", "/me/conversations", params, &result); err != nil {
		return nil, fmt.Errorf("error fetching conversations: %w", err)
	}
	return result.Data, nil
}

// ConversationMessages fetches the full message list of one conversation.
func (c *Client) ConversationMessages(ctx context.Context, conversationID, pageToken string) ([]Message, error) {
	params := url.Values{
		"fields":       {"messages{message,from,to,attachments}"},
		"access_token": {pageToken},
	}

	var result struct {
		ID       string      `json:"id"`
		Messages MessageList `json:"messages"`
	}
	if err := c.do(ctx, "GET", "/"+conversationID, params, &result); err != nil {
		return nil, fmt.Errorf("error fetching conversation %s: %w", conversationID, err)
	}
	return result.Messages.Data, nil
}

// Profile fetches a thread participant's public profile.
func (c *Client) Profile(ctx context.Context, userID, pageToken string) (*Sender, error) {
	params := url.Values{
		"fields":       {"first_name,last_name,name,profile_pic"},
		"access_token": {pageToken},
	}

	var sender Sender
	if err := c.do(ctx, "GET", "/"+userID, params, &sender); err != nil {
		return nil, err
	}
	if sender.ID == "" {
		sender.ID = userID
	}
	return &sender, nil
}

// SendMessage posts a reply into a conversation using the page credential
// and returns a receipt echoing the delivered text.
func (c *Client) SendMessage(ctx context.Context, conversationID, pageToken, text string) (*Receipt, error) {
	params := url.Values{
		"message":      {text},
		"access_token": {pageToken},
	}

	var receipt Receipt
	if err := c.do(ctx, "POST", "/"+conversationID+"/messages", params, &receipt); err != nil {
		return nil, err
	}
	receipt.Text = text
	return &receipt, nil
}

// do performs one Graph call. Query parameters double as the form body on
// POST, which is how the platform accepts message posting. Non-200 bodies
// are decoded into the standard Graph error envelope.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, dest interface{}) error {
	var req *http.Request
	var err error

	if method == "POST" {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	}
	if err != nil {
		return fmt.Errorf("error creating request for %s: %v", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error reaching Graph API: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("error reading Graph response body: %w", readErr)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if unmarshalErr := json.Unmarshal(bodyBytes, &envelope); unmarshalErr == nil && envelope.Error.Message != "" {
			log.Printf("Graph API error. Message: %s, Type: %s, Code: %d, Trace: %s",
				envelope.Error.Message, envelope.Error.Type, envelope.Error.Code, envelope.Error.FbtraceID)
			return &envelope.Error
		}
		log.Printf("Graph API error (could not parse error JSON). Status: %s, body: %s", resp.Status, string(bodyBytes))
		return fmt.Errorf("graph API error (%s)", resp.Status)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("error parsing Graph response for %s: %w", path, err)
	}
	return nil
}
