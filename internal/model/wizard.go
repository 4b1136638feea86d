package model

import "github.com/makeasinger/edusong/internal/apperror"

// AdvanceRequest is the body of POST /api/sessions/:sessionId/advance
type AdvanceRequest struct {
	Value  string `json:"value"`
	Custom string `json:"custom"`
}

// WizardView is a read-only snapshot of a wizard session
type WizardView struct {
	SessionID  string                   `json:"sessionId"`
	Step       Step                     `json:"step"`
	StepIndex  int                      `json:"stepIndex"`
	TotalSteps int                      `json:"totalSteps"`
	Question   string                   `json:"question,omitempty"`
	Session    Session                  `json:"session"`
	Busy       bool                     `json:"busy"`
	Progress   int                      `json:"progress"`
	Lyrics     *LyricsResult            `json:"lyrics,omitempty"`
	Task       *SongTask                `json:"task,omitempty"`
	Song       *SongResult              `json:"song,omitempty"`
	FileName   string                   `json:"fileName,omitempty"`
	Error      *apperror.Classification `json:"error,omitempty"`
	CanRetry   bool                     `json:"canRetry"`
	Version    uint64                   `json:"version"`
}
