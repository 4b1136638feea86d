package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/apperror"
	"github.com/makeasinger/edusong/internal/client"
	"github.com/makeasinger/edusong/internal/config"
	"github.com/makeasinger/edusong/internal/model"
)

func TestPoller_Delay(t *testing.T) {
	p := NewPoller(&fakeMusic{}, config.PollingConfig{BaseInterval: 5 * time.Second}, zap.NewNop())

	assert.Equal(t, 5*time.Second, p.Delay(0))
	assert.Equal(t, 7500*time.Millisecond, p.Delay(5))
	assert.Equal(t, 10*time.Second, p.Delay(10))

	for i := 1; i <= 10; i++ {
		assert.Greater(t, p.Delay(i), p.Delay(i-1), "attempt %d", i)
	}
	for i := 11; i <= 60; i++ {
		assert.Equal(t, p.Delay(10), p.Delay(i), "attempt %d", i)
	}
}

func TestPoller_Defaults(t *testing.T) {
	p := NewPoller(&fakeMusic{}, config.PollingConfig{}, zap.NewNop())
	assert.Equal(t, 60, p.cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.cfg.BaseInterval)
	assert.Equal(t, 2.0, p.cfg.RateLimitMultiplier)
}

func TestPoller_ExhaustedBudgetMakesNoRequest(t *testing.T) {
	music := &fakeMusic{}
	p := testPoller(t, music)

	out, err := p.Poll(context.Background(), "task-1", 61)
	require.Nil(t, out)

	var timeoutErr *apperror.PollingTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 61, timeoutErr.Attempts)
	assert.Zero(t, music.statusCount())

	c := apperror.Classify(err)
	assert.Equal(t, apperror.KindTimeout, c.Kind)
	assert.False(t, c.Recoverable)
}

func TestPoller_LastAttemptStillPolls(t *testing.T) {
	music := &fakeMusic{}
	p := testPoller(t, music)

	out, err := p.Poll(context.Background(), "task-1", 60)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, out.Status)
	assert.Equal(t, 1, music.statusCount())
}

func TestPoller_Pending(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		respond(envelope(200, "success", `{"status":"TEXT_SUCCESS"}`)),
	}}
	p := testPoller(t, music)

	out, err := p.Poll(context.Background(), "task-1", 4)
	require.NoError(t, err)
	assert.False(t, out.Done)
	assert.False(t, out.Transient)
	assert.Equal(t, model.TaskStatusTextSuccess, out.Status)
	assert.Equal(t, p.Delay(4), out.Delay)
}

func TestPoller_RateLimitedIsTransient(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		fail(&apperror.StatusError{Service: "suno", StatusCode: 429, Message: "Too Many Requests"}),
	}}
	p := testPoller(t, music)

	out, err := p.Poll(context.Background(), "task-1", 3)
	require.NoError(t, err)
	assert.True(t, out.Transient)
	assert.Equal(t, apperror.KindRateLimited, out.Failure)
	assert.Equal(t, 2*p.Delay(3), out.Delay)
}

func TestPoller_RateLimitedApplicationCode(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		respond(envelope(429, "rate limit exceeded", `null`)),
	}}
	p := testPoller(t, music)

	out, err := p.Poll(context.Background(), "task-1", 0)
	require.NoError(t, err)
	assert.True(t, out.Transient)
	assert.Equal(t, 2*p.Delay(0), out.Delay)
}

func TestPoller_TimeoutIsTransient(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		fail(context.DeadlineExceeded),
	}}
	p := testPoller(t, music)

	out, err := p.Poll(context.Background(), "task-1", 2)
	require.NoError(t, err)
	assert.True(t, out.Transient)
	assert.Equal(t, apperror.KindTimeout, out.Failure)
	assert.Equal(t, p.Delay(2), out.Delay)
}

func TestPoller_NonRecoverableCheckFailure(t *testing.T) {
	tests := []struct {
		name   string
		status func() (*client.Envelope, error)
	}{
		{"unauthorized transport", fail(&apperror.StatusError{Service: "suno", StatusCode: 401, Message: "unauthorized"})},
		{"application error code", respond(envelope(500, "internal error", `null`))},
		{"unknown transport failure", fail(errors.New("connection reset by peer"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPoller(t, &fakeMusic{statuses: []func() (*client.Envelope, error){tt.status}})

			out, err := p.Poll(context.Background(), "task-1", 0)
			require.Nil(t, out)

			var pollErr *apperror.PollingError
			require.ErrorAs(t, err, &pollErr)
			assert.Equal(t, "task-1", pollErr.TaskID)
		})
	}
}

func TestPoller_TerminalFailure(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		respond(envelope(200, "success", `{"status":"SENSITIVE_WORD_ERROR","errorMessage":"lyrics rejected"}`)),
	}}
	p := testPoller(t, music)

	_, err := p.Poll(context.Background(), "task-1", 0)

	var terminal *apperror.TerminalFailureError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, "SENSITIVE_WORD_ERROR", terminal.Status)
	assert.Equal(t, "lyrics rejected", terminal.Message)

	c := apperror.Classify(err)
	assert.Equal(t, apperror.KindRemoteTerminalFailure, c.Kind)
	assert.False(t, c.Recoverable)
	assert.Contains(t, c.UserMessage, "lyrics rejected")
}

func TestPoller_SuccessWithoutAudioURL(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		respond(envelope(200, "success", `{"status":"SUCCESS","response":{"sunoData":[]}}`)),
	}}
	p := testPoller(t, music)

	_, err := p.Poll(context.Background(), "task-1", 0)
	assert.ErrorIs(t, err, apperror.ErrNoAudioURL)

	var pollErr *apperror.PollingError
	assert.ErrorAs(t, err, &pollErr)
}

func TestPoller_RunUntilSuccess(t *testing.T) {
	music := &fakeMusic{statuses: []func() (*client.Envelope, error){
		respond(envelope(200, "success", `{"status":"PENDING"}`)),
		fail(&apperror.StatusError{Service: "suno", StatusCode: 429, Message: "slow down"}),
		respond(envelope(200, "success", `{"status":"FIRST_SUCCESS"}`)),
		respond(envelope(200, "success", `{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":"https://cdn.example.com/a.mp3"}]}}`)),
	}}
	p := testPoller(t, music)

	var attempts []int
	song, err := p.Run(context.Background(), "task-1", func(out *PollOutcome) {
		attempts = append(attempts, out.Attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.mp3", song.AudioURL)
	assert.Equal(t, "task-1", song.TaskID)
	assert.Equal(t, []int{0, 1, 2, 3}, attempts)
	assert.Equal(t, 4, music.statusCount())
}

func TestPoller_RunExhaustsBudget(t *testing.T) {
	music := &fakeMusic{}
	p := NewPoller(music, config.PollingConfig{
		BaseInterval: time.Millisecond,
		MaxAttempts:  3,
	}, zap.NewNop())

	_, err := p.Run(context.Background(), "task-1", nil)

	var timeoutErr *apperror.PollingTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 4, music.statusCount())
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	music := &fakeMusic{}
	p := NewPoller(music, config.PollingConfig{BaseInterval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx, "task-1", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return music.statusCount() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
	assert.Equal(t, 1, music.statusCount())
}
