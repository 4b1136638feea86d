package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/client"
	"github.com/makeasinger/edusong/internal/config"
	"github.com/makeasinger/edusong/internal/model"
)

// fakeMusic is a scripted MusicGenerator. Status responses are consumed in
// order; the last one repeats once the script runs out.
type fakeMusic struct {
	mu           sync.Mutex
	unconfigured bool

	generate func(req *client.GenerateMusicRequest) (*client.Envelope, error)
	statuses []func() (*client.Envelope, error)

	requests    []*client.GenerateMusicRequest
	statusCalls int
}

func (f *fakeMusic) GenerateMusic(_ context.Context, req *client.GenerateMusicRequest) (*client.Envelope, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.generate != nil {
		return f.generate(req)
	}
	return envelope(200, "success", fmt.Sprintf(`{"taskId":"task-%d"}`, n)), nil
}

func (f *fakeMusic) GetTaskStatus(_ context.Context, _ string) (*client.Envelope, error) {
	f.mu.Lock()
	i := f.statusCalls
	f.statusCalls++
	f.mu.Unlock()

	if len(f.statuses) == 0 {
		return envelope(200, "success", `{"status":"PENDING"}`), nil
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i]()
}

func (f *fakeMusic) IsConfigured() bool {
	return !f.unconfigured
}

func (f *fakeMusic) generateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeMusic) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func envelope(code int, msg, data string) *client.Envelope {
	return &client.Envelope{Code: code, Msg: msg, Data: json.RawMessage(data)}
}

func respond(env *client.Envelope) func() (*client.Envelope, error) {
	return func() (*client.Envelope, error) { return env, nil }
}

func fail(err error) func() (*client.Envelope, error) {
	return func() (*client.Envelope, error) { return nil, err }
}

// fakeLyrics counts Generate calls and returns fixed text
type fakeLyrics struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLyrics) Generate(_ context.Context, session model.Session) (*model.LyricsResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &model.LyricsResult{Text: "la la la", Session: session, CreatedAt: time.Now()}, nil
}

// recordingObserver collects every update it receives
type recordingObserver struct {
	mu        sync.Mutex
	lyrics    []*model.LyricsResult
	submitted []model.SongTask
	progress  []int
	tasks     []model.SongTask
}

func (o *recordingObserver) LyricsReady(l *model.LyricsResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lyrics = append(o.lyrics, l)
}

func (o *recordingObserver) TaskSubmitted(task model.SongTask) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitted = append(o.submitted, task)
}

func (o *recordingObserver) TaskProgress(task model.SongTask, progress int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = append(o.tasks, task)
	o.progress = append(o.progress, progress)
}

func testPoller(t *testing.T, music client.MusicGenerator) *Poller {
	t.Helper()
	return NewPoller(music, config.PollingConfig{
		BaseInterval:        time.Millisecond,
		MaxAttempts:         60,
		RateLimitMultiplier: 2,
	}, zap.NewNop())
}

func testSession() model.Session {
	return model.Session{
		Name:    "Ada",
		Age:     "10",
		Grade:   "5",
		Subject: "Math",
		Topic:   "Fractions",
		Genre:   "Pop",
	}
}
