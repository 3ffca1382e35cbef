// types.go
package graph

import "fmt"

// Identity is the authenticated user behind the session token.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Picture struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Page is one Facebook business Page the admin manages, carrying its own
// page-scoped access token.
type Page struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	AccessToken string  `json:"access_token"`
	Picture     Picture `json:"picture"`
}

// Sender is a message-thread participant. Depending on the endpoint the
// Graph API fills either the combined name or the first/last split.
type Sender struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ProfilePic string `json:"profile_pic"`
}

// DisplayName prefers the combined name and falls back to first/last.
func (s Sender) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.FirstName != "" || s.LastName != "" {
		return s.FirstName + " " + s.LastName
	}
	return s.ID
}

type SenderList struct {
	Data []Sender `json:"data"`
}

type Conversation struct {
	ID      string     `json:"id"`
	Senders SenderList `json:"senders"`
}

type Attachment struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
}

type AttachmentList struct {
	Data []Attachment `json:"data"`
}

// Message is one message inside a conversation thread.
type Message struct {
	ID          string         `json:"id"`
	Text        string         `json:"message"`
	From        Sender         `json:"from"`
	To          SenderList     `json:"to"`
	Attachments AttachmentList `json:"attachments"`
}

type MessageList struct {
	Data []Message `json:"data"`
}

// Receipt confirms a delivered outgoing message. Text and Sender are echoed
// from the request since the Graph API only returns the new message id.
type Receipt struct {
	MessageID string `json:"message_id"`
	Text      string `json:"-"`
	Sender    string `json:"-"`
}

type Permission struct {
	Permission string `json:"permission"`
	Status     string `json:"status"`
}

// SubscribedApp is one app wired to receive a page's Messenger events.
type SubscribedApp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is the webhook payload delivering real-time Messenger traffic.
type Event struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEntry `json:"messaging"`
}

type MessagingEntry struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message *EventMessage `json:"message"`
}

type EventMessage struct {
	Mid    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// userMessages maps the Graph error codes this console runs into onto
// strings fit for the notification surface.
var userMessages = map[int]string{
	10:  "API Permission Denied",
	190: "Access token has expired",
	210: "Wrong token used",
	492: "Session expired",
}

// APIError is the decoded Graph API error envelope.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FbtraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error (code %d, type %s): %s", e.Code, e.Type, e.Message)
}

// UserMessage returns the user-facing string for known error codes, or the
// raw Graph message otherwise.
func (e *APIError) UserMessage() string {
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return e.Message
}
