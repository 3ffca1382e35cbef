// webhook.go
package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"messenger-console/graph"
	"messenger-console/session"
)

// validateSignature verifies the X-Hub-Signature-256 header of feed POSTs
// against the app secret before any payload is trusted.
func (a *App) validateSignature(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			signature := r.Header.Get("X-Hub-Signature-256")
			if len(signature) < len("sha256=")+1 {
				log.Printf("❌ Missing signature header")
				http.Error(w, "Missing signature", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				log.Printf("❌ Error reading request body: %v", err)
				http.Error(w, "Error reading body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			expectedSig := signEventBody(body, []byte(a.appSecret))
			if !hmac.Equal([]byte(signature[len("sha256="):]), []byte(expectedSig)) {
				log.Printf("❌ Invalid signature")
				http.Error(w, "Invalid signature", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// signEventBody creates the HMAC-SHA256 hex digest of a feed payload.
func signEventBody(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// handleWebhook is the real-time feed entry point. GET requests answer the
// platform's verification handshake; POST requests carry new_message events.
func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")

		if mode == "subscribe" && token == a.verifyToken {
			log.Printf("✅ Webhook verification successful!")
			w.Write([]byte(challenge))
			return
		}
		log.Printf("❌ Webhook verification failed")
		http.Error(w, "Invalid verification token", http.StatusForbidden)
		return
	}

	if r.Method == "POST" {
		log.Printf("📨 Incoming feed event from %s", r.RemoteAddr)

		var event graph.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			log.Printf("❌ Error parsing feed JSON: %v", err)
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		if event.Object != "page" {
			log.Printf("⚠️ Ignoring unsupported feed object %q", event.Object)
			w.WriteHeader(http.StatusOK)
			return
		}

		a.processEvent(r, event)

		// Always acknowledge so the platform does not retry.
		w.Write([]byte("EVENT_RECEIVED"))
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// processEvent routes every messaging entry of the feed event, then does a
// full conversation/sender refresh when anything changed the session.
func (a *App) processEvent(r *http.Request, event graph.Event) {
	changed := false
	for _, entry := range event.Entry {
		for _, msg := range entry.Messaging {
			result, sender := a.ctrl.RouteIncomingMessage(r.Context(), msg)
			switch result {
			case session.RouteIgnored:
				continue
			case session.RouteRendered:
				a.appendReceived(msg.Message.Text, sender)
			}
			changed = true
		}
	}

	if changed {
		a.refreshConversations(r.Context())
	}
}
