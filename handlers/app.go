// app.go
package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"

	"messenger-console/graph"
	apperrors "messenger-console/pkg/errors"
	"messenger-console/pkg/notify"
	"messenger-console/pkg/template"
	"messenger-console/session"
)

// App wires the HTTP surface and the real-time feed to the session
// controller. It owns only view state: the conversation list and the open
// thread as last rendered. Everything authoritative lives in the controller.
type App struct {
	ctrl     *session.Controller
	renderer *template.Renderer
	notifier notify.Notifier

	appSecret   string
	verifyToken string

	mu            sync.Mutex
	conversations []graph.Conversation
	messages      []graph.Message
	noPages       bool
}

func NewApp(ctrl *session.Controller, renderer *template.Renderer, notifier notify.Notifier, appSecret, verifyToken string) *App {
	return &App{
		ctrl:        ctrl,
		renderer:    renderer,
		notifier:    notifier,
		appSecret:   appSecret,
		verifyToken: verifyToken,
	}
}

// Startup runs the strictly sequential startup reconciliation: initialize,
// resolve the token, list pages, resolve the subscribed page, then load
// conversations and senders. Each stage's failure is reported through the
// notifier and the sequence continues with best-effort defaults; only an
// unreachable API aborts it.
func (a *App) Startup(ctx context.Context, freshToken string) error {
	status, err := a.ctrl.Initialize(ctx, freshToken)
	if err != nil {
		a.notifier.Error("cannot reach the messaging API")
		return err
	}
	if status != session.StatusConnected {
		a.notifier.Error("not connected to Facebook")
		return nil
	}

	if _, err := a.ctrl.ResolveToken(ctx, freshToken); err != nil {
		a.notifier.Error("could not resolve an access token")
	}

	if declined, err := a.ctrl.DeclinedPermissions(ctx); err == nil && len(declined) > 0 {
		log.Printf("⚠️ User declined permissions: %v", declined)
	}

	pages, err := a.ctrl.ListPages(ctx)
	if err != nil {
		a.notifier.Error("could not load your pages")
		return nil
	}
	if len(pages) == 0 {
		log.Printf("💤 The user manages no pages")
		a.setNoPages(true)
		return nil
	}
	a.setNoPages(false)

	page, err := a.ctrl.ResolveSubscribedPage(ctx)
	if err != nil {
		a.notifier.Error("could not resolve the subscribed page")
		return nil
	}
	if page == nil {
		return nil
	}

	a.refreshConversations(ctx)
	return nil
}

// refreshConversations reloads the conversation list and the sender
// directory for the subscribed page.
func (a *App) refreshConversations(ctx context.Context) {
	conversations, err := a.ctrl.ListConversations(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoConversations) {
			a.notifier.Error("this page has no conversations yet")
		} else {
			log.Printf("❌ Conversation refresh failed: %v", err)
			a.notifier.Error("could not load conversations")
		}
		a.setConversations(nil)
		return
	}

	a.ctrl.ResolveSenders(ctx, conversations, func(conversation graph.Conversation, err error) {
		log.Printf("⚠️ Falling back to thread data for conversation %s: %v", conversation.ID, err)
	})
	a.setConversations(conversations)
}

func (a *App) setConversations(conversations []graph.Conversation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conversations = conversations
}

// appendReceived inserts an inline message into the open thread view. The
// thread is held newest-first, as the API lists it.
func (a *App) appendReceived(text string, sender graph.Sender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append([]graph.Message{{
		Text: text,
		From: sender,
	}}, a.messages...)
}

func (a *App) setNoPages(noPages bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.noPages = noPages
}

func (a *App) view() template.ConsoleView {
	a.mu.Lock()
	defer a.mu.Unlock()

	view := template.ConsoleView{
		Pages:         a.ctrl.Pages(),
		NoPages:       a.noPages,
		Conversations: a.conversations,
		Messages:      a.messages,
		SenderID:      a.ctrl.CurrentSender().ID,
		ShowInput:     a.ctrl.CurrentConversation() != "",
	}
	if page, ok := a.ctrl.SubscribedPage(); ok {
		view.SubscribedPage = &page
	}
	return view
}

// Routes builds the HTTP surface with panic recovery on every handler.
func (a *App) Routes() *http.ServeMux {
	router := http.NewServeMux()
	router.HandleFunc("/", recoverMiddleware(a.handleConsole))
	router.HandleFunc("/auth/token", recoverMiddleware(a.handleAuthToken))
	router.HandleFunc("/send", recoverMiddleware(a.handleSend))
	router.HandleFunc("/pages/toggle", recoverMiddleware(a.handleToggle))
	router.HandleFunc("/conversations/open", recoverMiddleware(a.handleOpenConversation))
	router.HandleFunc("/logout", recoverMiddleware(a.handleLogout))
	router.HandleFunc("/webhook", recoverMiddleware(a.validateSignature(a.handleWebhook)))
	return router
}

func recoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("❌ PANIC RECOVERED: %v", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

func (a *App) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if err := a.renderer.RenderConsole(w, a.view()); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleAuthToken receives the freshly issued short-lived token from the
// browser login flow and runs the startup sequence with it.
func (a *App) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token := r.FormValue("access_token")
	if token == "" {
		apperrors.HandleError(w, apperrors.New(apperrors.ErrValidation, "access_token is required", nil))
		return
	}

	if err := a.Startup(r.Context(), token); err != nil {
		apperrors.HandleError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSend validates and sends the composed message. Validation and send
// failures are reported without clearing anything so the user can retry.
func (a *App) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	receipt, err := a.ctrl.SendMessage(r.Context(), r.FormValue("message"))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrValidation) {
			a.notifier.Error("write something first")
		} else {
			log.Printf("❌ Send failed: %v", err)
			a.notifier.Error("could not send the message")
		}
		apperrors.HandleError(w, err)
		return
	}

	a.mu.Lock()
	a.messages = append([]graph.Message{{
		ID:   receipt.MessageID,
		Text: receipt.Text,
		From: graph.Sender{Name: receipt.Sender},
	}}, a.messages...)
	a.mu.Unlock()

	if err := a.renderer.RenderSentMessage(w, receipt.Text); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (a *App) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := a.ctrl.ToggleSubscription(r.Context(), r.FormValue("page_id"))
	if err != nil {
		log.Printf("❌ Subscription toggle failed: %v", err)
		a.notifier.Error("could not change the page subscription")
		apperrors.HandleError(w, err)
		return
	}

	switch result {
	case session.ToggleSubscribed:
		a.notifier.Success("subscribed successfuly")
		a.refreshConversations(r.Context())
	case session.ToggleUnsubscribed:
		a.notifier.Success("unsubscribed successfuly")
		a.setConversations(nil)
		a.mu.Lock()
		a.messages = nil
		a.mu.Unlock()
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("id")
	if conversationID == "" {
		apperrors.HandleError(w, apperrors.New(apperrors.ErrValidation, "id is required", nil))
		return
	}

	messages, sender, err := a.ctrl.OpenConversation(r.Context(), conversationID)
	if err != nil {
		log.Printf("❌ Could not open conversation %s: %v", conversationID, err)
		apperrors.HandleError(w, err)
		return
	}

	a.mu.Lock()
	a.messages = messages
	a.mu.Unlock()

	if err := a.renderer.RenderMessageList(w, messages, sender.ID); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.ctrl.Reset()
	a.mu.Lock()
	a.conversations = nil
	a.messages = nil
	a.noPages = false
	a.mu.Unlock()

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
