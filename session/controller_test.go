package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"messenger-console/cache"
	"messenger-console/graph"
	apperrors "messenger-console/pkg/errors"
	"messenger-console/pkg/notify"
	"messenger-console/tokenstore"
)

type callCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{counts: make(map[string]int)}
}

func (c *callCounter) inc(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
}

func (c *callCounter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// fixture wires a controller to fake Graph and token-store servers with
// per-endpoint call counting.
type fixture struct {
	ctrl         *Controller
	store        *cache.Memory
	recorder     *notify.Recorder
	graphCalls   *callCounter
	backendCalls *callCounter
}

const (
	pagesJSON = `{"data":[
		{"id":"1","name":"My Page","access_token":"pagetok","picture":{"data":{"url":"http://pic/1"}}},
		{"id":"2","name":"Other Page","access_token":"pagetok2","picture":{"data":{"url":"http://pic/2"}}}
	]}`
	conversationsJSON = `{"data":[
		{"id":"t_100","senders":{"data":[{"id":"9","name":"Jane Roe"},{"id":"1","name":"My Page"}]}},
		{"id":"t_200","senders":{"data":[{"id":"9","name":"Jane Roe"},{"id":"1","name":"My Page"}]}}
	]}`
	threadJSON = `{"id":"t_100","messages":{"data":[
		{"id":"m_2","message":"hi there","from":{"id":"9","name":"Jane Roe"},"to":{"data":[{"id":"1","name":"My Page"}]}},
		{"id":"m_1","message":"hello","from":{"id":"1","name":"My Page"},"to":{"data":[{"id":"9","name":"Jane Roe"}]}}
	]}}`
	profileJSON = `{"id":"9","first_name":"Jane","last_name":"Roe","name":"Jane Roe","profile_pic":"http://pic/9"}`
)

// graphOverrides lets a test replace individual endpoints of the default
// fake Graph API.
type graphOverrides map[string]http.HandlerFunc

func defaultGraphHandler(counter *callCounter, overrides graphOverrides) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		counter.inc(key)

		if override, ok := overrides[key]; ok {
			override(w, r)
			return
		}

		switch key {
		case "GET /me":
			w.Write([]byte(`{"id":"admin","name":"Admin"}`))
		case "GET /me/accounts":
			w.Write([]byte(pagesJSON))
		case "GET /me/subscribed_apps":
			w.Write([]byte(`{"data":[]}`))
		case "POST /me/subscribed_apps", "DELETE /me/subscribed_apps":
			w.Write([]byte(`{"success":true}`))
		case "GET /me/conversations":
			w.Write([]byte(conversationsJSON))
		case "GET /t_100", "GET /t_200":
			w.Write([]byte(threadJSON))
		case "GET /9":
			w.Write([]byte(profileJSON))
		case "POST /t_100/messages":
			w.Write([]byte(`{"message_id":"m_42"}`))
		default:
			http.Error(w, `{"error":{"message":"unknown path","code":803}}`, http.StatusBadRequest)
		}
	}
}

// backendState is what the fake token store serves per action.
type backendState struct {
	token        string // get_token response value
	longLived    string // change_token response value, "" means failure
	subscription string // get_subscription body, "" means none stored
}

func backendHandler(counter *callCounter, state backendState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := r.FormValue("action")
		counter.inc(action)

		switch action {
		case "get_token":
			w.Write([]byte(`{"response":"` + state.token + `"}`))
		case "change_token":
			if state.longLived == "" {
				http.Error(w, "exchange failed", http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"response":"` + state.longLived + `"}`))
		case "get_subscription":
			w.Write([]byte(state.subscription))
		case "subscribe_page", "unsubscribe_page":
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
	}
}

func newFixture(t *testing.T, overrides graphOverrides, state backendState) *fixture {
	t.Helper()

	graphCalls := newCallCounter()
	backendCalls := newCallCounter()

	graphServer := httptest.NewServer(defaultGraphHandler(graphCalls, overrides))
	t.Cleanup(graphServer.Close)
	backendServer := httptest.NewServer(backendHandler(backendCalls, state))
	t.Cleanup(backendServer.Close)

	store := cache.NewMemory()
	recorder := notify.NewRecorder()
	ctrl := NewController(
		graph.NewClient(graphServer.URL, graphServer.Client()),
		tokenstore.NewClient(backendServer.URL, backendServer.Client()),
		store,
		recorder,
	)

	return &fixture{
		ctrl:         ctrl,
		store:        store,
		recorder:     recorder,
		graphCalls:   graphCalls,
		backendCalls: backendCalls,
	}
}

// subscribe puts the fixture into the subscribed-to-page-1 state through the
// public API.
func (f *fixture) subscribe(t *testing.T) {
	t.Helper()
	if _, err := f.ctrl.ListPages(context.Background()); err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	if _, err := f.ctrl.ToggleSubscription(context.Background(), "1"); err != nil {
		t.Fatalf("ToggleSubscription failed: %v", err)
	}
}

func TestInitialize(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		status, err := f.ctrl.Initialize(context.Background(), "EAAshort")
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if status != StatusConnected {
			t.Errorf("status = %s, want connected", status)
		}
	})

	t.Run("rejected token means disconnected", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /me": func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190}}`))
			},
		}, backendState{})

		status, err := f.ctrl.Initialize(context.Background(), "stale")
		if err != nil {
			t.Fatalf("a Graph rejection must not be fatal: %v", err)
		}
		if status != StatusDisconnected {
			t.Errorf("status = %s, want disconnected", status)
		}
	})

	t.Run("unreachable API is fatal", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		ctrl := NewController(
			graph.NewClient("http://127.0.0.1:1", &http.Client{}),
			nil, f.store, f.recorder,
		)

		_, err := ctrl.Initialize(context.Background(), "EAAshort")
		if !apperrors.Is(err, apperrors.ErrInit) {
			t.Errorf("expected InitError, got %v", err)
		}
	})
}

func TestResolveTokenTiers(t *testing.T) {
	t.Run("cache tier wins and lower tiers never run", func(t *testing.T) {
		f := newFixture(t, nil, backendState{token: "FROM_BACKEND"})
		if err := f.store.Save(cache.KeyAccessToken, "CACHED"); err != nil {
			t.Fatal(err)
		}

		token, err := f.ctrl.ResolveToken(context.Background(), "SHORT")
		if err != nil {
			t.Fatalf("ResolveToken failed: %v", err)
		}
		if token != "CACHED" {
			t.Errorf("token = %q, want CACHED", token)
		}
		if got := f.backendCalls.get("get_token"); got != 0 {
			t.Errorf("backend consulted %d times after cache hit, want 0", got)
		}
	})

	t.Run("backend tier", func(t *testing.T) {
		f := newFixture(t, nil, backendState{token: "ABC"})

		token, err := f.ctrl.ResolveToken(context.Background(), "SHORT")
		if err != nil {
			t.Fatalf("ResolveToken failed: %v", err)
		}
		if token != "ABC" {
			t.Errorf("token = %q, want ABC", token)
		}
		if got := f.ctrl.Token(); got != "ABC" {
			t.Errorf("controller token = %q, want ABC", got)
		}
		if got := f.backendCalls.get("change_token"); got != 0 {
			t.Errorf("exchange ran %d times after backend hit, want 0", got)
		}
	})

	t.Run("exchange tier", func(t *testing.T) {
		f := newFixture(t, nil, backendState{longLived: "LONG"})

		token, err := f.ctrl.ResolveToken(context.Background(), "SHORT")
		if err != nil {
			t.Fatalf("ResolveToken failed: %v", err)
		}
		if token != "LONG" {
			t.Errorf("token = %q, want LONG", token)
		}
	})

	t.Run("short-lived token is the last resort", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})

		token, err := f.ctrl.ResolveToken(context.Background(), "SHORT")
		if err != nil {
			t.Fatalf("ResolveToken failed: %v", err)
		}
		if token != "SHORT" {
			t.Errorf("token = %q, want SHORT", token)
		}
	})

	t.Run("no source at all", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})

		if _, err := f.ctrl.ResolveToken(context.Background(), ""); !apperrors.Is(err, apperrors.ErrTokenResolution) {
			t.Errorf("expected token resolution error, got %v", err)
		}
	})
}

func TestListPages(t *testing.T) {
	t.Run("prefers cached copy", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		cached := []graph.Page{{ID: "7", Name: "Cached Page"}}
		if err := f.store.Save(cache.KeyUserPages, cached); err != nil {
			t.Fatal(err)
		}

		pages, err := f.ctrl.ListPages(context.Background())
		if err != nil {
			t.Fatalf("ListPages failed: %v", err)
		}
		if len(pages) != 1 || pages[0].ID != "7" {
			t.Errorf("pages = %+v, want the cached page", pages)
		}
		if got := f.graphCalls.get("GET /me/accounts"); got != 0 {
			t.Errorf("live fetch ran %d times despite cache, want 0", got)
		}
	})

	t.Run("cache miss triggers live fetch", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})

		pages, err := f.ctrl.ListPages(context.Background())
		if err != nil {
			t.Fatalf("ListPages failed: %v", err)
		}
		if len(pages) != 2 {
			t.Errorf("got %d pages, want 2", len(pages))
		}
	})

	t.Run("empty result is valid", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /me/accounts": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":[]}`))
			},
		}, backendState{})

		pages, err := f.ctrl.ListPages(context.Background())
		if err != nil {
			t.Fatalf("an empty page list must not be an error: %v", err)
		}
		if len(pages) != 0 {
			t.Errorf("got %d pages, want 0", len(pages))
		}
	})
}

func TestResolveSubscribedPage(t *testing.T) {
	t.Run("cache tier", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		if err := f.store.Save(cache.KeySubscribedPage, graph.Page{ID: "1", Name: "My Page", AccessToken: "pagetok"}); err != nil {
			t.Fatal(err)
		}

		page, err := f.ctrl.ResolveSubscribedPage(context.Background())
		if err != nil {
			t.Fatalf("ResolveSubscribedPage failed: %v", err)
		}
		if page == nil || page.ID != "1" {
			t.Fatalf("page = %+v, want page 1", page)
		}
		if got := f.backendCalls.get("get_subscription"); got != 0 {
			t.Errorf("backend consulted %d times after cache hit, want 0", got)
		}
	})

	t.Run("backend tier", func(t *testing.T) {
		f := newFixture(t, nil, backendState{
			subscription: `{"id":"2","name":"Other Page","access_token":"pagetok2"}`,
		})

		page, err := f.ctrl.ResolveSubscribedPage(context.Background())
		if err != nil {
			t.Fatalf("ResolveSubscribedPage failed: %v", err)
		}
		if page == nil || page.ID != "2" {
			t.Fatalf("page = %+v, want page 2", page)
		}
		if got := f.graphCalls.get("GET /me/subscribed_apps"); got != 0 {
			t.Errorf("live scan ran %d times after backend hit, want 0", got)
		}
	})

	t.Run("live scan tier", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /me/subscribed_apps": func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("access_token") == "pagetok2" {
					w.Write([]byte(`{"data":[{"id":"42","name":"console"}]}`))
					return
				}
				w.Write([]byte(`{"data":[]}`))
			},
		}, backendState{})
		if _, err := f.ctrl.ListPages(context.Background()); err != nil {
			t.Fatal(err)
		}

		page, err := f.ctrl.ResolveSubscribedPage(context.Background())
		if err != nil {
			t.Fatalf("ResolveSubscribedPage failed: %v", err)
		}
		if page == nil || page.ID != "2" {
			t.Fatalf("page = %+v, want page 2 found by scan", page)
		}
	})

	t.Run("no tier hits", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		if _, err := f.ctrl.ListPages(context.Background()); err != nil {
			t.Fatal(err)
		}

		page, err := f.ctrl.ResolveSubscribedPage(context.Background())
		if err != nil {
			t.Fatalf("an empty result must not be an error: %v", err)
		}
		if page != nil {
			t.Errorf("page = %+v, want none", page)
		}
	})
}

func TestToggleSubscription(t *testing.T) {
	t.Run("subscribe then idempotent unsubscribe", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		if _, ok := f.ctrl.SubscribedPage(); !ok {
			t.Fatal("expected a subscribed page")
		}
		if got := f.graphCalls.get("POST /me/subscribed_apps"); got != 1 {
			t.Errorf("subscribe called %d times, want 1", got)
		}
		if got := f.backendCalls.get("subscribe_page"); got != 1 {
			t.Errorf("backend subscribe_page called %d times, want 1", got)
		}

		if err := f.ctrl.Unsubscribe(context.Background()); err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}
		if err := f.ctrl.Unsubscribe(context.Background()); err != nil {
			t.Fatalf("second Unsubscribe must be a no-op: %v", err)
		}

		if got := f.graphCalls.get("DELETE /me/subscribed_apps"); got != 1 {
			t.Errorf("unsubscribe issued %d external calls, want exactly 1", got)
		}
		if _, ok := f.ctrl.SubscribedPage(); ok {
			t.Error("expected unsubscribed state")
		}
	})

	t.Run("toggle on the subscribed page unsubscribes", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		result, err := f.ctrl.ToggleSubscription(context.Background(), "1")
		if err != nil {
			t.Fatalf("ToggleSubscription failed: %v", err)
		}
		if result != ToggleUnsubscribed {
			t.Errorf("result = %v, want ToggleUnsubscribed", result)
		}
	})

	t.Run("switching pages subscribes without unsubscribing", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		result, err := f.ctrl.ToggleSubscription(context.Background(), "2")
		if err != nil {
			t.Fatalf("ToggleSubscription failed: %v", err)
		}
		if result != ToggleSubscribed {
			t.Errorf("result = %v, want ToggleSubscribed", result)
		}
		page, ok := f.ctrl.SubscribedPage()
		if !ok || page.ID != "2" {
			t.Errorf("subscribed page = %+v, want page 2", page)
		}
		if got := f.graphCalls.get("DELETE /me/subscribed_apps"); got != 0 {
			t.Errorf("page switch issued %d unsubscribes, the observed behavior issues none", got)
		}
	})

	t.Run("unknown page", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		if _, err := f.ctrl.ListPages(context.Background()); err != nil {
			t.Fatal(err)
		}

		if _, err := f.ctrl.ToggleSubscription(context.Background(), "404"); !apperrors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("expected not-found error, got %v", err)
		}
	})
}

func TestListConversations(t *testing.T) {
	t.Run("requires a subscription", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		if _, err := f.ctrl.ListConversations(context.Background()); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("no conversations", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /me/conversations": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":[]}`))
			},
		}, backendState{})
		f.subscribe(t)

		if _, err := f.ctrl.ListConversations(context.Background()); !apperrors.Is(err, apperrors.ErrNoConversations) {
			t.Errorf("expected NoConversations error, got %v", err)
		}
	})
}

func TestResolveSenders(t *testing.T) {
	t.Run("deduplicates and fetches each profile once", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		conversations, err := f.ctrl.ListConversations(context.Background())
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}

		f.ctrl.ResolveSenders(context.Background(), conversations, nil)

		senders := f.ctrl.Senders()
		if len(senders) != 1 {
			t.Fatalf("directory has %d senders, want 1 (deduplicated, page excluded)", len(senders))
		}
		if senders[0].ProfilePic != "http://pic/9" {
			t.Errorf("sender profile was not fetched: %+v", senders[0])
		}
		if got := f.graphCalls.get("GET /9"); got != 1 {
			t.Errorf("profile fetched %d times for a duplicated sender, want 1", got)
		}
	})

	t.Run("per-sender failure is isolated", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /9": func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"down","code":2}}`, http.StatusInternalServerError)
			},
		}, backendState{})
		f.subscribe(t)

		conversations, err := f.ctrl.ListConversations(context.Background())
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}

		var failed []graph.Conversation
		f.ctrl.ResolveSenders(context.Background(), conversations, func(conversation graph.Conversation, err error) {
			if !apperrors.Is(err, apperrors.ErrSenderProfile) {
				t.Errorf("callback error = %v, want sender profile error", err)
			}
			failed = append(failed, conversation)
		})

		if len(failed) != 1 {
			t.Errorf("callback ran %d times, want 1", len(failed))
		}
		senders := f.ctrl.Senders()
		if len(senders) != 1 || senders[0].Name != "Jane Roe" {
			t.Errorf("expected the thread-provided fallback sender, got %+v", senders)
		}
	})
}

func TestOpenConversation(t *testing.T) {
	t.Run("first message from customer", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		messages, sender, err := f.ctrl.OpenConversation(context.Background(), "t_100")
		if err != nil {
			t.Fatalf("OpenConversation failed: %v", err)
		}
		if len(messages) != 2 {
			t.Errorf("got %d messages, want 2", len(messages))
		}
		if sender.ID != "9" {
			t.Errorf("other party = %s, want 9", sender.ID)
		}

		var persisted string
		if err := f.store.Load(cache.KeyCurrentConversation, &persisted); err != nil || persisted != "t_100" {
			t.Errorf("current conversation not persisted: %q, %v", persisted, err)
		}
	})

	t.Run("first message from the page", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /t_100": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id":"t_100","messages":{"data":[
					{"id":"m_1","message":"hello","from":{"id":"1","name":"My Page"},"to":{"data":[{"id":"9","name":"Jane Roe"}]}}
				]}}`))
			},
		}, backendState{})
		f.subscribe(t)

		_, sender, err := f.ctrl.OpenConversation(context.Background(), "t_100")
		if err != nil {
			t.Fatalf("OpenConversation failed: %v", err)
		}
		if sender.ID != "9" {
			t.Errorf("other party = %s, want the recipient 9", sender.ID)
		}
	})

	t.Run("empty conversation", func(t *testing.T) {
		f := newFixture(t, graphOverrides{
			"GET /t_100": func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id":"t_100","messages":{"data":[]}}`))
			},
		}, backendState{})
		f.subscribe(t)

		if _, _, err := f.ctrl.OpenConversation(context.Background(), "t_100"); !apperrors.Is(err, apperrors.ErrEmptyConversation) {
			t.Errorf("expected EmptyConversation error, got %v", err)
		}
	})
}

func TestSendMessage(t *testing.T) {
	t.Run("empty message rejected before any network call", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		if _, err := f.ctrl.SendMessage(context.Background(), "   "); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if got := f.graphCalls.get("POST /t_100/messages"); got != 0 {
			t.Errorf("send issued %d network calls for an empty message, want 0", got)
		}
	})

	t.Run("delivery receipt echoes the text", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)
		if _, _, err := f.ctrl.OpenConversation(context.Background(), "t_100"); err != nil {
			t.Fatal(err)
		}

		receipt, err := f.ctrl.SendMessage(context.Background(), "hello")
		if err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		if receipt.Text != "hello" {
			t.Errorf("receipt text = %q, want hello", receipt.Text)
		}
		if receipt.Sender != "My Page" {
			t.Errorf("receipt sender = %q, want My Page", receipt.Sender)
		}
	})

	t.Run("no active conversation", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		if _, err := f.ctrl.SendMessage(context.Background(), "hello"); !apperrors.Is(err, apperrors.ErrSend) {
			t.Errorf("expected send error, got %v", err)
		}
	})
}

func incoming(senderID, recipientID, text string) graph.MessagingEntry {
	var msg graph.MessagingEntry
	msg.Sender.ID = senderID
	msg.Recipient.ID = recipientID
	msg.Message = &graph.EventMessage{Text: text}
	return msg
}

func TestRouteIncomingMessage(t *testing.T) {
	t.Run("recipient mismatch is a complete no-op", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		result, _ := f.ctrl.RouteIncomingMessage(context.Background(), incoming("9", "999", "hi"))
		if result != RouteIgnored {
			t.Errorf("result = %v, want RouteIgnored", result)
		}
		if got := f.recorder.PushCount(); got != 0 {
			t.Errorf("%d notifications emitted, want 0", got)
		}
	})

	t.Run("unknown sender raises a push and leaves the directory alone", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)

		result, sender := f.ctrl.RouteIncomingMessage(context.Background(), incoming("9", "1", "hi"))
		if result != RouteUnknownSender {
			t.Errorf("result = %v, want RouteUnknownSender", result)
		}
		if sender.Name != "Jane Roe" {
			t.Errorf("display sender = %+v, want the fetched profile", sender)
		}
		if got := f.recorder.PushCount(); got != 1 {
			t.Errorf("%d notifications emitted, want 1", got)
		}
		if got := len(f.ctrl.Senders()); got != 0 {
			t.Errorf("directory grew to %d entries, want 0", got)
		}
	})

	t.Run("known inactive sender notifies only", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)
		conversations, err := f.ctrl.ListConversations(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		f.ctrl.ResolveSenders(context.Background(), conversations, nil)

		result, _ := f.ctrl.RouteIncomingMessage(context.Background(), incoming("9", "1", "hi"))
		if result != RouteNotified {
			t.Errorf("result = %v, want RouteNotified", result)
		}
		if got := f.recorder.PushCount(); got != 1 {
			t.Errorf("%d notifications emitted, want 1", got)
		}
	})

	t.Run("active sender renders inline and still notifies", func(t *testing.T) {
		f := newFixture(t, nil, backendState{})
		f.subscribe(t)
		conversations, err := f.ctrl.ListConversations(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		f.ctrl.ResolveSenders(context.Background(), conversations, nil)
		if _, _, err := f.ctrl.OpenConversation(context.Background(), "t_100"); err != nil {
			t.Fatal(err)
		}

		result, sender := f.ctrl.RouteIncomingMessage(context.Background(), incoming("9", "1", "hi"))
		if result != RouteRendered {
			t.Errorf("result = %v, want RouteRendered", result)
		}
		if sender.ID != "9" {
			t.Errorf("sender = %+v, want 9", sender)
		}
		if got := f.recorder.PushCount(); got != 1 {
			t.Errorf("%d notifications emitted, want 1 (the duplicate notify is kept)", got)
		}
	})
}

func TestReset(t *testing.T) {
	f := newFixture(t, nil, backendState{})
	f.subscribe(t)
	if _, err := f.ctrl.ResolveToken(context.Background(), "SHORT"); err != nil {
		t.Fatal(err)
	}

	f.ctrl.Reset()

	if f.ctrl.Token() != "" {
		t.Error("token survived the reset")
	}
	if _, ok := f.ctrl.SubscribedPage(); ok {
		t.Error("subscription survived the reset")
	}
	if len(f.ctrl.Pages()) != 0 {
		t.Error("pages survived the reset")
	}

	var token string
	if err := f.store.Load(cache.KeyAccessToken, &token); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("persisted token survived the reset: %v", err)
	}
}
