package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/apperror"
	"github.com/makeasinger/edusong/internal/client"
	"github.com/makeasinger/edusong/internal/config"
	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/internal/telemetry"
)

// backoffCeilingAttempt is the attempt after which the poll delay stops growing
const backoffCeilingAttempt = 10

// PollOutcome is the result of a single status check that did not fail
type PollOutcome struct {
	Attempt   int
	Status    model.TaskStatus
	Done      bool
	Song      *model.SongResult
	Transient bool
	Failure   apperror.Kind
	Delay     time.Duration
}

// Poller checks the status of a song generation task
type Poller struct {
	music  client.MusicGenerator
	cfg    config.PollingConfig
	logger *zap.Logger
}

// NewPoller creates a new poller
func NewPoller(music client.MusicGenerator, cfg config.PollingConfig, logger *zap.Logger) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = 5 * time.Second
	}
	if cfg.RateLimitMultiplier < 1 {
		cfg.RateLimitMultiplier = 2
	}
	return &Poller{
		music:  music,
		cfg:    cfg,
		logger: logger.Named("poller"),
	}
}

// Delay returns the wait before the poll following the given attempt:
// base * (1 + 0.1*min(attempt, 10)).
func (p *Poller) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > backoffCeilingAttempt {
		attempt = backoffCeilingAttempt
	}
	return time.Duration(float64(p.cfg.BaseInterval) * (1 + 0.1*float64(attempt)))
}

// Poll performs one status check for the given attempt number
func (p *Poller) Poll(ctx context.Context, taskID string, attempt int) (*PollOutcome, error) {
	if attempt > p.cfg.MaxAttempts {
		telemetry.StatusPolls.WithLabelValues("timeout").Inc()
		return nil, &apperror.PollingTimeoutError{TaskID: taskID, Attempts: attempt}
	}

	env, err := p.music.GetTaskStatus(ctx, taskID)
	if err != nil {
		return p.checkFailed(taskID, attempt, err)
	}

	// Transport succeeded; the application code is checked on its own
	if !env.OK() {
		return p.checkFailed(taskID, attempt, &apperror.StatusError{Service: "suno", StatusCode: env.Code, Message: env.Msg})
	}

	doc, err := decodeDocument(env.Data)
	if err != nil {
		telemetry.StatusPolls.WithLabelValues("error").Inc()
		return nil, &apperror.PollingError{TaskID: taskID, Cause: err}
	}

	status := model.TaskStatus(path("status")(doc))
	out := &PollOutcome{Attempt: attempt, Status: status}

	switch {
	case status == model.TaskStatusSuccess:
		audioURL, strategy, ok := FirstMatch(AudioURLExtractors, doc)
		if !ok {
			telemetry.StatusPolls.WithLabelValues("error").Inc()
			return nil, &apperror.PollingError{TaskID: taskID, Cause: apperror.ErrNoAudioURL}
		}
		telemetry.StatusPolls.WithLabelValues("success").Inc()
		p.logger.Info("song ready",
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.String("strategy", strategy),
		)
		out.Done = true
		out.Song = &model.SongResult{AudioURL: audioURL, TaskID: taskID}
		return out, nil

	case status.IsFailure():
		telemetry.StatusPolls.WithLabelValues("failed").Inc()
		return nil, &apperror.TerminalFailureError{
			TaskID:  taskID,
			Status:  string(status),
			Message: path("errorMessage")(doc),
		}

	default:
		telemetry.StatusPolls.WithLabelValues("pending").Inc()
		p.logger.Debug("song still generating",
			zap.String("task_id", taskID),
			zap.Int("attempt", attempt),
			zap.String("status", string(status)),
		)
		out.Delay = p.Delay(attempt)
		return out, nil
	}
}

// checkFailed decides whether a failed status check keeps polling alive
func (p *Poller) checkFailed(taskID string, attempt int, err error) (*PollOutcome, error) {
	c := apperror.Classify(err)
	if !c.Recoverable {
		telemetry.StatusPolls.WithLabelValues("error").Inc()
		return nil, &apperror.PollingError{TaskID: taskID, Cause: err}
	}

	delay := p.Delay(attempt)
	if c.Kind == apperror.KindRateLimited {
		delay = time.Duration(float64(delay) * p.cfg.RateLimitMultiplier)
	}

	telemetry.StatusPolls.WithLabelValues("transient").Inc()
	p.logger.Warn("transient status check failure, will poll again",
		zap.String("task_id", taskID),
		zap.Int("attempt", attempt),
		zap.String("kind", string(c.Kind)),
		zap.Duration("delay", delay),
		zap.Error(err),
	)

	return &PollOutcome{
		Attempt:   attempt,
		Transient: true,
		Failure:   c.Kind,
		Delay:     delay,
	}, nil
}

// Run polls sequentially until the task reaches a terminal state, the
// attempt budget is exhausted or ctx is cancelled. onPoll is called after
// every poll that did not fail.
func (p *Poller) Run(ctx context.Context, taskID string, onPoll func(*PollOutcome)) (*model.SongResult, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := p.Poll(ctx, taskID, attempt)
		if err != nil {
			return nil, err
		}

		if onPoll != nil {
			onPoll(out)
		}

		if out.Done {
			return out.Song, nil
		}

		if err := wait(ctx, out.Delay); err != nil {
			return nil, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
