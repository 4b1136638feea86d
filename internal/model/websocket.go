package model

import "github.com/makeasinger/edusong/internal/apperror"

// WebSocket message types
const (
	WSMessageTypeState    = "state"
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStateMessage carries the full wizard view after a transition
type WSStateMessage struct {
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	State     WizardView `json:"state"`
}

// WSProgressMessage represents a polling progress update
type WSProgressMessage struct {
	Type         string     `json:"type"`
	SessionID    string     `json:"sessionId"`
	TaskID       string     `json:"taskId"`
	Progress     int        `json:"progress"`
	Status       TaskStatus `json:"status"`
	AttemptCount int        `json:"attemptCount"`
}

// WSCompleteMessage represents song completion
type WSCompleteMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Song      *SongResult   `json:"song"`
	Lyrics    *LyricsResult `json:"lyrics"`
}

// WSErrorMessage represents a pipeline failure
type WSErrorMessage struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"sessionId"`
	Error     apperror.Classification `json:"error"`
}
