// controller.go
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"messenger-console/cache"
	"messenger-console/graph"
	apperrors "messenger-console/pkg/errors"
	"messenger-console/pkg/notify"
	"messenger-console/tokenstore"
)

// Status is the connection state of the authenticated identity.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// RouteResult says what an incoming real-time message did to the session.
type RouteResult int

const (
	// RouteIgnored: the message was not addressed to the subscribed page.
	RouteIgnored RouteResult = iota
	// RouteUnknownSender: sender absent from the directory, push emitted.
	RouteUnknownSender
	// RouteNotified: known sender, not the open conversation.
	RouteNotified
	// RouteRendered: known sender of the open conversation; the caller
	// should render the message inline.
	RouteRendered
)

// ToggleResult reports which side of the subscription toggle ran.
type ToggleResult int

const (
	ToggleSubscribed ToggleResult = iota
	ToggleUnsubscribed
)

// subscription is the tagged subscription state: a nil page means
// unsubscribed, anything else means subscribed to exactly that page. Being
// subscribed to two pages is unrepresentable.
type subscription struct {
	page *graph.Page
}

func (s subscription) subscribed() bool {
	return s.page != nil
}

// Controller owns the authenticated identity, the selected page, the
// subscription state and the conversation/sender state. Every call to the
// Graph API and to the backend token store goes through it. In-memory state
// is authoritative; the cache store holds a write-through shadow copy used
// only for recovery.
type Controller struct {
	graph    *graph.Client
	backend  *tokenstore.Client
	store    cache.Store
	notifier notify.Notifier

	mu           sync.Mutex
	token        string
	status       Status
	pages        []graph.Page
	subscription subscription
	conversation string
	sender       graph.Sender
	directory    map[string]graph.Sender
	senderOrder  []string

	profileGroup singleflight.Group
}

func NewController(graphClient *graph.Client, backend *tokenstore.Client, store cache.Store, notifier notify.Notifier) *Controller {
	return &Controller{
		graph:     graphClient,
		backend:   backend,
		store:     store,
		notifier:  notifier,
		status:    StatusUnknown,
		directory: make(map[string]graph.Sender),
	}
}

// Initialize establishes the session by validating the freshly issued token
// against the Graph API. A transport failure is fatal to startup; a Graph
// rejection just means the identity is disconnected.
func (c *Controller) Initialize(ctx context.Context, freshToken string) (Status, error) {
	identity, err := c.graph.Me(ctx, freshToken)
	if err != nil {
		var apiErr *graph.APIError
		if errors.As(err, &apiErr) {
			log.Printf("🔌 Identity rejected by Graph API: %s", apiErr.UserMessage())
			c.setStatus(StatusDisconnected)
			return StatusDisconnected, nil
		}
		c.setStatus(StatusUnknown)
		return StatusUnknown, apperrors.New(apperrors.ErrInit, "cannot reach the messaging API", err)
	}

	log.Printf("👤 Session established for %s (%s)", identity.Name, identity.ID)
	c.setStatus(StatusConnected)
	return StatusConnected, nil
}

func (c *Controller) setStatus(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ResolveToken runs the three-tier token lookup: local cache, then the
// backend store, then a long-lived exchange of the fresh short-lived token.
// The first tier yielding a non-empty token wins and lower tiers are never
// consulted. Tier failures are non-fatal; the short-lived token itself is
// the last resort.
func (c *Controller) ResolveToken(ctx context.Context, freshToken string) (string, error) {
	var cached string
	if err := c.store.Load(cache.KeyAccessToken, &cached); err == nil && cached != "" {
		log.Printf("🎯 Token found in local cache")
		c.setToken(cached)
		return cached, nil
	}

	stored, err := c.backend.GetToken(ctx)
	if err != nil {
		log.Printf("⚠️ Token store lookup failed: %v", err)
	} else if stored != "" {
		log.Printf("🎯 Token found in backend store")
		c.setToken(stored)
		return stored, nil
	}

	if freshToken == "" {
		return "", apperrors.New(apperrors.ErrTokenResolution, "no access token available from any source", nil)
	}

	longLived, err := c.backend.ExchangeToken(ctx, freshToken)
	if err != nil {
		log.Printf("⚠️ Long-lived token exchange failed, keeping short-lived token: %v", err)
		c.setToken(freshToken)
		return freshToken, nil
	}

	log.Printf("🔁 Short-lived token exchanged for a long-lived one")
	c.setToken(longLived)
	return longLived, nil
}

// setToken records the token in memory and writes it through to the cache.
func (c *Controller) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	if err := c.store.Save(cache.KeyAccessToken, token); err != nil {
		log.Printf("⚠️ Could not persist access token: %v", err)
	}
}

func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// ListPages returns the admin's pages, preferring the cached copy. An empty
// result is a valid outcome, not an error.
func (c *Controller) ListPages(ctx context.Context) ([]graph.Page, error) {
	var cached []graph.Page
	if err := c.store.Load(cache.KeyUserPages, &cached); err == nil {
		log.Printf("🎯 User pages are cached (%d)", len(cached))
		c.setPages(cached, false)
		return cached, nil
	}

	log.Printf("📡 Fetching user pages from the API")
	pages, err := c.graph.Accounts(ctx, c.Token())
	if err != nil {
		return nil, err
	}
	c.setPages(pages, true)
	return pages, nil
}

func (c *Controller) setPages(pages []graph.Page, persist bool) {
	c.mu.Lock()
	c.pages = pages
	c.mu.Unlock()

	if persist {
		if err := c.store.Save(cache.KeyUserPages, pages); err != nil {
			log.Printf("⚠️ Could not persist user pages: %v", err)
		}
	}
}

func (c *Controller) Pages() []graph.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages
}

func (c *Controller) pageByID(pageID string) (graph.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, page := range c.pages {
		if page.ID == pageID {
			return page, true
		}
	}
	return graph.Page{}, false
}

// ResolveSubscribedPage runs the four-tier subscription lookup: local cache,
// backend store, live per-page API scan, else none. Each tier's absence or
// failure is non-fatal. A nil page with a nil error means no page is
// subscribed.
func (c *Controller) ResolveSubscribedPage(ctx context.Context) (*graph.Page, error) {
	var cached graph.Page
	if err := c.store.Load(cache.KeySubscribedPage, &cached); err == nil && cached.ID != "" {
		log.Printf("🎯 Subscribed page found in local cache: %s", cached.Name)
		c.adoptSubscription(cached, false)
		return &cached, nil
	}

	stored, err := c.backend.GetSubscription(ctx)
	if err != nil {
		log.Printf("⚠️ Backend subscription lookup failed: %v", err)
	} else if stored != nil {
		log.Printf("🎯 Subscribed page found in backend store: %s", stored.Name)
		c.adoptSubscription(*stored, true)
		return stored, nil
	}

	for _, page := range c.Pages() {
		apps, err := c.graph.SubscribedApps(ctx, page.AccessToken)
		if err != nil {
			log.Printf("⚠️ Subscription scan failed for page %s: %v", page.Name, err)
			continue
		}
		if len(apps) == 0 {
			continue
		}
		log.Printf("🎯 Live scan found subscribed page: %s", page.Name)
		c.adoptSubscription(page, true)
		subscribed := page
		return &subscribed, nil
	}

	log.Printf("💤 No subscribed page in any tier")
	return nil, nil
}

// adoptSubscription records the subscribed page and restores the
// conversation pointers the cache may still hold for it.
func (c *Controller) adoptSubscription(page graph.Page, persist bool) {
	c.mu.Lock()
	c.subscription = subscription{page: &page}
	c.mu.Unlock()

	if persist {
		if err := c.store.Save(cache.KeySubscribedPage, page); err != nil {
			log.Printf("⚠️ Could not persist subscribed page: %v", err)
		}
	}
	c.restorePointers()
}

// restorePointers reloads the advisory conversation/sender pointers and the
// sender directory from the cache after a restart.
func (c *Controller) restorePointers() {
	var conversationID string
	var sender graph.Sender
	var senders []graph.Sender

	if err := c.store.Load(cache.KeyCurrentConversation, &conversationID); err != nil {
		conversationID = ""
	}
	if err := c.store.Load(cache.KeyCurrentSender, &sender); err != nil {
		sender = graph.Sender{}
	}
	if err := c.store.Load(cache.KeySendersList, &senders); err != nil {
		senders = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversation = conversationID
	c.sender = sender
	for _, s := range senders {
		if _, exists := c.directory[s.ID]; !exists {
			c.directory[s.ID] = s
			c.senderOrder = append(c.senderOrder, s.ID)
		}
	}
}

// SubscribedPage returns the current subscription, if any.
func (c *Controller) SubscribedPage() (graph.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscription.subscribed() {
		return graph.Page{}, false
	}
	return *c.subscription.page, true
}

// ToggleSubscription drives the subscription state machine. Clicking the
// subscribed page unsubscribes it; clicking any other page subscribes that
// page. Switching pages does not unsubscribe the previous one first, which
// mirrors how the console has always behaved.
func (c *Controller) ToggleSubscription(ctx context.Context, pageID string) (ToggleResult, error) {
	if current, ok := c.SubscribedPage(); ok && current.ID == pageID {
		if err := c.Unsubscribe(ctx); err != nil {
			return ToggleUnsubscribed, err
		}
		return ToggleUnsubscribed, nil
	}

	page, found := c.pageByID(pageID)
	if !found {
		return ToggleSubscribed, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("unknown page %s", pageID), nil)
	}

	log.Printf("📌 Subscribing page %s", page.Name)
	if err := c.graph.Subscribe(ctx, page.AccessToken); err != nil {
		return ToggleSubscribed, apperrors.New(apperrors.ErrSubscription, "could not subscribe the page", err)
	}

	c.adoptSubscription(page, true)
	if err := c.backend.SubscribePage(ctx, page); err != nil {
		log.Printf("⚠️ Could not record subscription backend-side: %v", err)
	}
	return ToggleSubscribed, nil
}

// Unsubscribe removes the current subscription. With no page subscribed it
// is a no-op: no external call is issued and the state stays unsubscribed.
func (c *Controller) Unsubscribe(ctx context.Context) error {
	page, ok := c.SubscribedPage()
	if !ok {
		log.Printf("💤 Unsubscribe with no subscribed page, nothing to do")
		return nil
	}

	log.Printf("📌 Unsubscribing page %s", page.Name)
	if err := c.graph.Unsubscribe(ctx, page.AccessToken); err != nil {
		return apperrors.New(apperrors.ErrSubscription, "could not unsubscribe the page", err)
	}

	c.mu.Lock()
	c.subscription = subscription{}
	c.conversation = ""
	c.sender = graph.Sender{}
	c.mu.Unlock()

	if err := c.store.Remove(cache.KeySubscribedPage); err != nil && !errors.Is(err, cache.ErrNotFound) {
		log.Printf("⚠️ Could not drop cached subscribed page: %v", err)
	}
	if err := c.backend.UnsubscribePage(ctx); err != nil {
		log.Printf("⚠️ Could not clear subscription backend-side: %v", err)
	}
	return nil
}

// ListConversations returns the subscribed page's threads. A page with no
// conversations is reported as an error for the notification surface, but
// does not end the session.
func (c *Controller) ListConversations(ctx context.Context) ([]graph.Conversation, error) {
	page, ok := c.SubscribedPage()
	if !ok {
		return nil, apperrors.New(apperrors.ErrValidation, "no page is subscribed", nil)
	}

	conversations, err := c.graph.Conversations(ctx, page.AccessToken)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, apperrors.New(apperrors.ErrNoConversations, "this page has no conversations yet", nil)
	}
	return conversations, nil
}

// ResolveSenders fetches the full profile of every thread participant other
// than the page itself and deduplicates them into the sender directory. A
// per-sender fetch failure is isolated: the conversation is handed to
// onError so the caller can render a fallback, the sender is kept with the
// partial data the thread listing already gave us, and processing of the
// remaining senders continues. Concurrent duplicate profile fetches collapse
// through singleflight.
func (c *Controller) ResolveSenders(ctx context.Context, conversations []graph.Conversation, onError func(graph.Conversation, error)) {
	page, ok := c.SubscribedPage()
	if !ok {
		return
	}

	for _, conversation := range conversations {
		for _, sender := range conversation.Senders.Data {
			if sender.ID == page.ID {
				continue
			}
			if _, known := c.lookupSender(sender.ID); known {
				continue
			}

			profile, err, _ := c.profileGroup.Do(sender.ID, func() (interface{}, error) {
				return c.graph.Profile(ctx, sender.ID, page.AccessToken)
			})
			if err != nil {
				log.Printf("⚠️ Profile fetch failed for sender %s: %v", sender.ID, err)
				if onError != nil {
					onError(conversation, apperrors.New(apperrors.ErrSenderProfile, "could not fetch sender profile", err))
				}
				c.addSender(sender)
				continue
			}
			c.addSender(*profile.(*graph.Sender))
		}
	}
	c.persistSenders()
}

func (c *Controller) lookupSender(senderID string) (graph.Sender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sender, known := c.directory[senderID]
	return sender, known
}

func (c *Controller) addSender(sender graph.Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.directory[sender.ID]; exists {
		return
	}
	c.directory[sender.ID] = sender
	c.senderOrder = append(c.senderOrder, sender.ID)
}

func (c *Controller) persistSenders() {
	if err := c.store.Save(cache.KeySendersList, c.Senders()); err != nil {
		log.Printf("⚠️ Could not persist sender directory: %v", err)
	}
}

// Senders returns the directory in first-seen order.
func (c *Controller) Senders() []graph.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	senders := make([]graph.Sender, 0, len(c.senderOrder))
	for _, id := range c.senderOrder {
		senders = append(senders, c.directory[id])
	}
	return senders
}

// OpenConversation fetches a thread's messages, computes the other party by
// comparing the first message's from/to against the subscribed page, and
// records the active conversation/sender pointers.
func (c *Controller) OpenConversation(ctx context.Context, conversationID string) ([]graph.Message, graph.Sender, error) {
	page, ok := c.SubscribedPage()
	if !ok {
		return nil, graph.Sender{}, apperrors.New(apperrors.ErrValidation, "no page is subscribed", nil)
	}

	messages, err := c.graph.ConversationMessages(ctx, conversationID, page.AccessToken)
	if err != nil {
		return nil, graph.Sender{}, err
	}
	if len(messages) == 0 {
		return nil, graph.Sender{}, apperrors.New(apperrors.ErrEmptyConversation, "this conversation has no messages", nil)
	}

	first := messages[0]
	var other graph.Sender
	if first.From.ID == page.ID {
		if len(first.To.Data) > 0 {
			other = first.To.Data[0]
		}
	} else {
		other = first.From
	}

	c.mu.Lock()
	c.conversation = conversationID
	c.sender = other
	c.mu.Unlock()

	if err := c.store.Save(cache.KeyCurrentConversation, conversationID); err != nil {
		log.Printf("⚠️ Could not persist current conversation: %v", err)
	}
	if err := c.store.Save(cache.KeyCurrentSender, other); err != nil {
		log.Printf("⚠️ Could not persist current sender: %v", err)
	}
	return messages, other, nil
}

// CurrentSender returns the counterpart of the open conversation.
func (c *Controller) CurrentSender() graph.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sender
}

func (c *Controller) CurrentConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

// SendMessage posts text into the active conversation with the subscribed
// page's credential. An empty post-trim message is rejected before any
// network call.
func (c *Controller) SendMessage(ctx context.Context, text string) (*graph.Receipt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "write something first", nil)
	}

	page, ok := c.SubscribedPage()
	if !ok {
		return nil, apperrors.New(apperrors.ErrSend, "no page is subscribed", nil)
	}
	conversationID := c.CurrentConversation()
	if conversationID == "" {
		return nil, apperrors.New(apperrors.ErrSend, "no active conversation", nil)
	}

	receipt, err := c.graph.SendMessage(ctx, conversationID, page.AccessToken, text)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrSend, "could not send the message", err)
	}
	receipt.Sender = page.Name
	return receipt, nil
}

// RouteIncomingMessage decides what a real-time message does to the visible
// session. Messages not addressed to the subscribed page are dropped with no
// state change and no notification. An unknown sender raises a push built
// from a freshly fetched profile; the directory stays as it was. A known
// sender behind the open conversation gets rendered inline and still
// notified; any other known sender gets the notification only.
func (c *Controller) RouteIncomingMessage(ctx context.Context, msg graph.MessagingEntry) (RouteResult, graph.Sender) {
	page, ok := c.SubscribedPage()
	if !ok || msg.Recipient.ID != page.ID {
		return RouteIgnored, graph.Sender{}
	}
	if msg.Message == nil {
		return RouteIgnored, graph.Sender{}
	}

	sender, known := c.lookupSender(msg.Sender.ID)
	if !known {
		display := graph.Sender{ID: msg.Sender.ID}
		if profile, err := c.graph.Profile(ctx, msg.Sender.ID, page.AccessToken); err == nil {
			display = *profile
		} else {
			log.Printf("⚠️ Profile fetch failed for new sender %s: %v", msg.Sender.ID, err)
		}
		c.notifier.Push("new message from new sender", fmt.Sprintf("%s: %s", display.DisplayName(), msg.Message.Text))
		return RouteUnknownSender, display
	}

	if active := c.CurrentSender(); sender.ID == active.ID {
		c.notifier.Push("new message", fmt.Sprintf("%s: %s", sender.DisplayName(), msg.Message.Text))
		return RouteRendered, sender
	}

	c.notifier.Push("new message from "+sender.DisplayName(), msg.Message.Text)
	return RouteNotified, sender
}

// Reset wipes all in-memory and persisted session state on logout. This is
// the deliberate boundary reset, not a failure path.
func (c *Controller) Reset() {
	log.Printf("👋 Resetting session state")

	c.mu.Lock()
	c.token = ""
	c.status = StatusUnknown
	c.pages = nil
	c.subscription = subscription{}
	c.conversation = ""
	c.sender = graph.Sender{}
	c.directory = make(map[string]graph.Sender)
	c.senderOrder = nil
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		log.Printf("⚠️ Could not clear the session cache: %v", err)
	}
}

// DeclinedPermissions reports the login permissions the user refused.
func (c *Controller) DeclinedPermissions(ctx context.Context) ([]string, error) {
	return c.graph.DeclinedPermissions(ctx, c.Token())
}
