package cache

import (
	"fmt"
)

var ErrNotFound = fmt.Errorf("not found in cache")

// Session artifact keys. Memory in the session controller is authoritative;
// the store holds a write-through shadow copy used for recovery across
// restarts, so a stored value is advisory and validated before use.
const (
	KeyAccessToken         = "access_token"
	KeySubscribedPage      = "subed_page"
	KeyUserPages           = "user_pages"
	KeyCurrentConversation = "current_conversation"
	KeyCurrentSender       = "current_sender"
	KeySendersList         = "senders_list"
)

// Store is a synchronous key/value store of JSON-serializable session
// artifacts. Load into an absent key returns ErrNotFound, never an internal
// failure; callers treat not-found as a normal outcome.
type Store interface {
	Save(key string, value interface{}) error
	Load(key string, dest interface{}) error
	Remove(key string) error
	Clear() error
}
