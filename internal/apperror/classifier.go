package apperror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Kind is the taxonomy entry a raw failure maps to
type Kind string

const (
	KindTimeout               Kind = "timeout"
	KindRateLimited           Kind = "rate_limited"
	KindAuthFailure           Kind = "auth_failure"
	KindMissingTaskID         Kind = "missing_task_id"
	KindRemoteTerminalFailure Kind = "remote_terminal_failure"
	KindUnknown               Kind = "unknown"
)

var userMessages = map[Kind]string{
	KindTimeout:               "The music service is taking longer than expected. We'll keep checking.",
	KindRateLimited:           "Too many requests right now. We'll try again in a moment.",
	KindAuthFailure:           "The service rejected our credentials. Please contact support.",
	KindMissingTaskID:         "The music service did not return a task to track. Please try again.",
	KindRemoteTerminalFailure: "Song generation failed. Please try again.",
	KindUnknown:               "Something went wrong. Please try again.",
}

// stoppedMessages replace the "we'll keep checking" text once a run has ended
var stoppedMessages = map[Kind]string{
	KindTimeout:     "The service took too long to respond. Please try again.",
	KindRateLimited: "The service is busy right now. Please wait a moment and try again.",
}

var rateLimitPhrases = []string{"rate limit", "rate-limit", "ratelimit", "too many requests", "quota exceeded"}

var timeoutPhrases = []string{"timeout", "timed out", "deadline exceeded"}

// Classification is the result of classifying a raw failure
type Classification struct {
	Kind        Kind   `json:"kind"`
	UserMessage string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// signals are the facts extracted from a raw failure, inspected in a fixed order
type signals struct {
	timeout       bool
	statusCode    int
	message       string
	missingTaskID bool
	terminal      *TerminalFailureError
	exhausted     bool
}

// Classify maps a raw error to a taxonomy entry. It is pure: the same error
// always yields the same classification.
func Classify(err error) Classification {
	if err == nil {
		return classify(signals{})
	}

	s := signals{message: err.Error()}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		s.timeout = true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		s.statusCode = statusErr.StatusCode
	}

	s.missingTaskID = errors.Is(err, ErrMissingTaskID)

	var terminal *TerminalFailureError
	if errors.As(err, &terminal) {
		s.terminal = terminal
	}

	var timeoutErr *PollingTimeoutError
	s.exhausted = errors.As(err, &timeoutErr)

	return classify(s)
}

// ClassifyResponse classifies an HTTP status code and message pair.
// Every pair maps to exactly one kind.
func ClassifyResponse(statusCode int, message string) Classification {
	return classify(signals{statusCode: statusCode, message: message})
}

func classify(s signals) Classification {
	// Remote failure messages are free text; only match phrases on transport errors.
	msg := ""
	if s.terminal == nil {
		msg = strings.ToLower(s.message)
	}

	switch {
	case s.exhausted:
		// the attempt budget is spent, polling does not continue, so this
		// timeout overrides IsRecoverable
		return Classification{
			Kind:        KindTimeout,
			UserMessage: "The song is taking too long to generate. Please try again.",
			Recoverable: false,
		}
	case s.timeout || s.statusCode == http.StatusRequestTimeout || s.statusCode == http.StatusGatewayTimeout || containsAny(msg, timeoutPhrases):
		return newClassification(KindTimeout)
	case s.statusCode == http.StatusTooManyRequests || containsAny(msg, rateLimitPhrases):
		return newClassification(KindRateLimited)
	case s.statusCode == http.StatusUnauthorized:
		return newClassification(KindAuthFailure)
	case s.missingTaskID:
		return newClassification(KindMissingTaskID)
	case s.terminal != nil:
		c := newClassification(KindRemoteTerminalFailure)
		if s.terminal.Message != "" {
			c.UserMessage = "Song generation failed: " + s.terminal.Message + ". Please try again."
		}
		return c
	default:
		return newClassification(KindUnknown)
	}
}

func newClassification(kind Kind) Classification {
	return Classification{
		Kind:        kind,
		UserMessage: userMessages[kind],
		Recoverable: IsRecoverable(kind),
	}
}

// Stopped returns the classification shown once a run has ended on this
// failure. Nothing retries automatically after that, so recoverable kinds
// lose the flag and point the user at a manual retry instead.
func (c Classification) Stopped() Classification {
	if c.Recoverable {
		if msg, ok := stoppedMessages[c.Kind]; ok {
			c.UserMessage = msg
		}
	}
	c.Recoverable = false
	return c
}

// IsRecoverable reports whether polling continues after a failure of this
// kind. It describes the kind alone: a spent attempt budget is classified
// as a timeout that is not recoverable, and Stopped clears the flag for
// any failure that ended a run.
func IsRecoverable(kind Kind) bool {
	return kind == KindTimeout || kind == KindRateLimited
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
