// Package eventlog provides structured JSONL logging of engine activity to
// daily rotated files. One line per event; the files are the audit trail for
// a session.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event kinds written to the log.
const (
	KindPromptSent    = "prompt_sent"
	KindModelResponse = "model_response"
	KindToolBatch     = "tool_batch"
	KindTableTalk     = "table_talk"
	KindTurnResolved  = "turn_resolved"
	KindSessionEnd    = "session_summary"
	KindError         = "error"
)

// Entry is one logged event. Payload holds kind-specific detail.
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	SessionID string         `json:"session_id"`
	SeatID    string         `json:"seat_id,omitempty"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Writer handles structured logging of engine events to daily rotated JSONL
// files.
type Writer struct {
	logDir      string
	sessionID   string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// NewWriter creates an event log writer with daily rotation in the given
// directory.
func NewWriter(logDir, sessionID string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	writer := &Writer{
		logDir:    logDir,
		sessionID: sessionID,
	}

	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return writer, nil
}

// Write appends one event to the current log file, rotating first if the day
// has changed.
func (w *Writer) Write(seatID, kind string, payload map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		SessionID: w.sessionID,
		SeatID:    seatID,
		Kind:      kind,
		Payload:   payload,
	}

	jsonData, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if _, err := w.currentFile.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if _, err := w.currentFile.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	newDate := time.Now().Format("2006-01-02")
	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}
	return nil
}

func (w *Writer) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	filename := fmt.Sprintf("events-%s.jsonl", newDate)
	path := filepath.Join(w.logDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = newDate
	return nil
}

// CurrentPath returns the path of the active log file.
func (w *Writer) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return ""
	}
	return w.currentFile.Name()
}

// Close closes the current log file and releases resources.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close event log file: %w", err)
		}
	}
	return nil
}
