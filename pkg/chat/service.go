// Package chat maintains the shared table-talk transcript: a bounded,
// in-memory history of what each seat has said, broadcast to listeners and
// rendered into prompts.
package chat

import (
	"strings"
	"sync"
	"time"

	"gameagent/pkg/config"
	"gameagent/pkg/logx"
)

// Message is one line of table talk.
type Message struct {
	SeatID    string    `json:"seat_id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives each posted message. Called synchronously on the posting
// goroutine; keep it fast.
type Listener func(Message)

// Service holds the shared transcript. History is trimmed lazily: it may
// grow to twice the window before being cut back, which keeps trims rare.
type Service struct {
	mu        sync.Mutex
	messages  []Message
	window    int
	maxChars  int
	listeners []Listener
	logger    *logx.Logger
}

// NewService creates a chat service with the configured window.
func NewService(cfg *config.ChatConfig) *Service {
	window := cfg.Window
	if window <= 0 {
		window = config.DefaultChatWindow
	}
	return &Service{
		window:   window,
		maxChars: cfg.MaxMessageChars,
		logger:   logx.NewLogger("chat"),
	}
}

// Post appends one message, truncating oversized text, and notifies
// listeners. Empty or whitespace-only text is dropped.
func (s *Service) Post(seatID, speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.maxChars > 0 && len(text) > s.maxChars {
		text = text[:s.maxChars]
	}

	msg := Message{
		SeatID:    seatID,
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if len(s.messages) > 2*s.window {
		trimmed := make([]Message, s.window)
		copy(trimmed, s.messages[len(s.messages)-s.window:])
		s.messages = trimmed
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.logger.DebugDomain("chat", "%s: %s", speaker, text)

	for _, listener := range listeners {
		listener(msg)
	}
}

// Subscribe registers a listener for all future messages.
func (s *Service) Subscribe(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Recent returns up to n most recent messages, oldest first.
func (s *Service) Recent(n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

// Len returns the current history length.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Transcript renders the windowed history as prompt-ready lines, one
// "Speaker: text" per line. Empty history renders as an empty string.
func (s *Service) Transcript() string {
	messages := s.Recent(s.window)
	if len(messages) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := range messages {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(messages[i].Speaker)
		sb.WriteString(": ")
		sb.WriteString(messages[i].Text)
	}
	return sb.String()
}
