package cache

import (
	"errors"
	"reflect"
	"testing"
)

type fakePage struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Token string   `json:"access_token"`
	Tags  []string `json:"tags"`
}

func TestMemoryRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		dest  func() interface{}
	}{
		{
			name:  "string value",
			key:   KeyAccessToken,
			value: "EAAtoken",
			dest:  func() interface{} { return new(string) },
		},
		{
			name:  "struct value",
			key:   KeySubscribedPage,
			value: fakePage{ID: "1", Name: "My Page", Token: "tok", Tags: []string{"a", "b"}},
			dest:  func() interface{} { return new(fakePage) },
		},
		{
			name:  "slice value",
			key:   KeySendersList,
			value: []fakePage{{ID: "9"}, {ID: "10"}},
			dest:  func() interface{} { return new([]fakePage) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemory()
			if err := store.Save(tt.key, tt.value); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			dest := tt.dest()
			if err := store.Load(tt.key, dest); err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			got := reflect.ValueOf(dest).Elem().Interface()
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("round trip mismatch: got %#v, want %#v", got, tt.value)
			}
		})
	}
}

func TestMemoryLoadAbsentKey(t *testing.T) {
	store := NewMemory()

	var value string
	err := store.Load("never_saved", &value)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for absent key, got %v", err)
	}
}

func TestMemorySaveRejectsNil(t *testing.T) {
	store := NewMemory()
	if err := store.Save(KeyAccessToken, nil); err == nil {
		t.Error("expected Save with nil value to fail")
	}
}

func TestMemoryRemove(t *testing.T) {
	store := NewMemory()
	if err := store.Save(KeyCurrentConversation, "t_123"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Remove(KeyCurrentConversation); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	var value string
	if err := store.Load(KeyCurrentConversation, &value); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after Remove, got %v", err)
	}

	if err := store.Remove(KeyCurrentConversation); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound removing twice, got %v", err)
	}
}

func TestMemoryClear(t *testing.T) {
	store := NewMemory()
	for _, key := range sessionKeys {
		if err := store.Save(key, "value"); err != nil {
			t.Fatalf("Save %s failed: %v", key, err)
		}
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	for _, key := range sessionKeys {
		var value string
		if err := store.Load(key, &value); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected %s gone after Clear, got %v", key, err)
		}
	}
}
