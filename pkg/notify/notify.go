package notify

import (
	"log"
	"sync"
)

// Notifier is the fire-and-forget success/error/push notification surface.
// Implementations never block and never report failures back to the caller.
type Notifier interface {
	Success(message string)
	Error(message string)
	Push(title, body string)
}

// Log writes notifications to the process log.
type Log struct{}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Success(message string) {
	if message == "" {
		message = "operation success"
	}
	log.Printf("✅ %s", message)
}

func (l *Log) Error(message string) {
	if message == "" {
		message = "something wrong happened"
	}
	log.Printf("❌ %s", message)
}

func (l *Log) Push(title, body string) {
	log.Printf("🔔 %s: %s", title, body)
}

// PushEvent is one recorded push notification.
type PushEvent struct {
	Title string
	Body  string
}

// Recorder captures notifications for tests.
type Recorder struct {
	mu        sync.Mutex
	Successes []string
	Errors    []string
	Pushes    []PushEvent
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Success(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Successes = append(r.Successes, message)
}

func (r *Recorder) Error(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, message)
}

func (r *Recorder) Push(title, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Pushes = append(r.Pushes, PushEvent{Title: title, Body: body})
}

func (r *Recorder) PushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Pushes)
}
