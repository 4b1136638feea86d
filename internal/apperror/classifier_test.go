package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o deadline reached" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantKind        Kind
		wantRecoverable bool
	}{
		{
			name:            "context deadline",
			err:             fmt.Errorf("failed to send request: %w", context.DeadlineExceeded),
			wantKind:        KindTimeout,
			wantRecoverable: true,
		},
		{
			name:            "net timeout",
			err:             fmt.Errorf("failed to send request: %w", timeoutNetErr{}),
			wantKind:        KindTimeout,
			wantRecoverable: true,
		},
		{
			name:            "gateway timeout status",
			err:             &StatusError{Service: "suno", StatusCode: http.StatusGatewayTimeout},
			wantKind:        KindTimeout,
			wantRecoverable: true,
		},
		{
			name:            "429 status",
			err:             &StatusError{Service: "suno", StatusCode: http.StatusTooManyRequests},
			wantKind:        KindRateLimited,
			wantRecoverable: true,
		},
		{
			name:            "rate limit phrase",
			err:             &StatusError{Service: "suno", StatusCode: 430, Message: "Rate limit reached, slow down"},
			wantKind:        KindRateLimited,
			wantRecoverable: true,
		},
		{
			name:     "401 status",
			err:      &GenerationError{Message: "denied", Cause: &StatusError{Service: "openai", StatusCode: http.StatusUnauthorized}},
			wantKind: KindAuthFailure,
		},
		{
			name:     "missing task id",
			err:      &SubmissionError{Cause: ErrMissingTaskID},
			wantKind: KindMissingTaskID,
		},
		{
			name:     "terminal failure",
			err:      &TerminalFailureError{Status: "SENSITIVE_WORD_ERROR", Message: "too many requests of sensitive words"},
			wantKind: KindRemoteTerminalFailure,
		},
		{
			name:     "attempt budget exhausted",
			err:      &PollingTimeoutError{TaskID: "t1", Attempts: 61},
			wantKind: KindTimeout,
		},
		{
			name:     "anything else",
			err:      errors.New("connection refused"),
			wantKind: KindUnknown,
		},
		{
			name:     "nil",
			err:      nil,
			wantKind: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantRecoverable, got.Recoverable)
			assert.NotEmpty(t, got.UserMessage)
		})
	}
}

func TestClassify_TerminalMessageIsSurfaced(t *testing.T) {
	got := Classify(&TerminalFailureError{Status: "GENERATE_AUDIO_FAILED", Message: "model overloaded"})
	assert.Contains(t, got.UserMessage, "model overloaded")
}

func TestClassifyResponse_IsTotal(t *testing.T) {
	messages := []string{"", "ok", "Too Many Requests", "request timed out", "unauthorized", "boom"}
	valid := map[Kind]bool{
		KindTimeout: true, KindRateLimited: true, KindAuthFailure: true,
		KindMissingTaskID: true, KindRemoteTerminalFailure: true, KindUnknown: true,
	}

	for code := 0; code < 600; code++ {
		for _, msg := range messages {
			first := ClassifyResponse(code, msg)
			second := ClassifyResponse(code, msg)
			assert.True(t, valid[first.Kind], "code=%d msg=%q", code, msg)
			assert.Equal(t, first, second)
		}
	}
}

func TestClassifyResponse_Order(t *testing.T) {
	// status 429 wins over 401 phrasing, timeout wins over rate limiting
	assert.Equal(t, KindRateLimited, ClassifyResponse(http.StatusTooManyRequests, "unauthorized").Kind)
	assert.Equal(t, KindTimeout, ClassifyResponse(http.StatusTooManyRequests, "upstream timed out").Kind)
	assert.Equal(t, KindAuthFailure, ClassifyResponse(http.StatusUnauthorized, "").Kind)
	assert.Equal(t, KindUnknown, ClassifyResponse(http.StatusInternalServerError, "").Kind)
}

func TestClassification_Stopped(t *testing.T) {
	timeout := Classify(&GenerationError{Message: "lyrics request failed", Cause: context.DeadlineExceeded})
	require.Equal(t, KindTimeout, timeout.Kind)
	require.True(t, timeout.Recoverable)

	stopped := timeout.Stopped()
	assert.Equal(t, KindTimeout, stopped.Kind)
	assert.False(t, stopped.Recoverable)
	assert.NotContains(t, stopped.UserMessage, "keep checking")
	assert.Contains(t, stopped.UserMessage, "try again")

	limited := ClassifyResponse(http.StatusTooManyRequests, "").Stopped()
	assert.False(t, limited.Recoverable)
	assert.Contains(t, limited.UserMessage, "try again")

	terminal := Classify(&TerminalFailureError{Status: "GENERATE_AUDIO_FAILED", Message: "model overloaded"})
	assert.Equal(t, terminal, terminal.Stopped(), "non-recoverable kinds keep their message")
}
