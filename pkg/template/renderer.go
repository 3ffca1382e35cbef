package template

import (
	"html/template"
	"io"
	"log"

	"messenger-console/graph"
)

// ConsoleView is everything the console page needs in one pass: the page
// pane, the conversation pane, the open thread and the composer visibility.
type ConsoleView struct {
	Pages          []graph.Page
	SubscribedPage *graph.Page
	NoPages        bool
	Conversations  []graph.Conversation
	Messages       []graph.Message
	SenderID       string
	ShowInput      bool
	ShowLoader     bool
}

type sentMessage struct {
	Text string
}

type receivedMessage struct {
	Sender string
	Text   string
}

type Renderer struct {
	templates *template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{
		templates: Templates,
	}
}

func (r *Renderer) render(w io.Writer, name string, data interface{}) error {
	if err := r.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("❌ Error rendering template %s: %v", name, err)
		return err
	}
	return nil
}

func (r *Renderer) RenderConsole(w io.Writer, view ConsoleView) error {
	return r.render(w, "console", view)
}

func (r *Renderer) RenderPageList(w io.Writer, pages []graph.Page) error {
	return r.render(w, "page-list", pages)
}

func (r *Renderer) RenderSubscribedPage(w io.Writer, page graph.Page) error {
	return r.render(w, "subscribed-page", page)
}

func (r *Renderer) RenderNoPagesNotice(w io.Writer) error {
	return r.render(w, "no-pages", nil)
}

func (r *Renderer) RenderConversationList(w io.Writer, conversations []graph.Conversation) error {
	return r.render(w, "conversation-list", conversations)
}

// RenderMessageList renders a thread; senderID marks which side of the
// conversation is the customer so messages split into incoming/outgoing.
func (r *Renderer) RenderMessageList(w io.Writer, messages []graph.Message, senderID string) error {
	return r.render(w, "message-list", ConsoleView{Messages: messages, SenderID: senderID})
}

func (r *Renderer) RenderSentMessage(w io.Writer, text string) error {
	return r.render(w, "sent-message", sentMessage{Text: text})
}

func (r *Renderer) RenderReceivedMessage(w io.Writer, sender, text string) error {
	return r.render(w, "received-message", receivedMessage{Sender: sender, Text: text})
}
