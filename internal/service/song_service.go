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

// SongObserver receives updates while a song is being produced
type SongObserver interface {
	LyricsReady(lyrics *model.LyricsResult)
	TaskSubmitted(task model.SongTask)
	TaskProgress(task model.SongTask, progress int)
}

type noopObserver struct{}

func (noopObserver) LyricsReady(*model.LyricsResult)  {}
func (noopObserver) TaskSubmitted(model.SongTask)     {}
func (noopObserver) TaskProgress(model.SongTask, int) {}

// SongService submits song generation jobs and follows them to completion
type SongService struct {
	music  client.MusicGenerator
	lyrics LyricsGenerator
	poller *Poller
	cfg    config.SunoConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSongService creates a new song service
func NewSongService(music client.MusicGenerator, lyrics LyricsGenerator, poller *Poller, cfg config.SunoConfig, logger *zap.Logger) *SongService {
	return &SongService{
		music:  music,
		lyrics: lyrics,
		poller: poller,
		cfg:    cfg,
		logger: logger.Named("song"),
		now:    time.Now,
	}
}

// Submit creates a remote song generation task from the lyrics
func (s *SongService) Submit(ctx context.Context, lyrics *model.LyricsResult, session model.Session) (*model.SongTask, error) {
	if s.music == nil || !s.music.IsConfigured() {
		telemetry.SongSubmissions.WithLabelValues("not_configured").Inc()
		return nil, &apperror.SubmissionError{Cause: apperror.ErrNotConfigured}
	}

	req := &client.GenerateMusicRequest{
		Prompt:       lyrics.Text,
		Style:        session.Genre,
		Title:        session.SongTitle(),
		CustomMode:   true,
		Instrumental: false,
		Model:        s.cfg.Model,
		NegativeTags: s.cfg.NegativeTags,
		CallBackURL:  s.cfg.CallbackURL,
	}

	env, err := s.music.GenerateMusic(ctx, req)
	if err != nil {
		telemetry.SongSubmissions.WithLabelValues("error").Inc()
		return nil, &apperror.SubmissionError{Cause: err}
	}

	if !env.OK() {
		telemetry.SongSubmissions.WithLabelValues("rejected").Inc()
		return nil, &apperror.SubmissionError{
			Cause: &apperror.StatusError{Service: "suno", StatusCode: env.Code, Message: env.Msg},
		}
	}

	doc, err := decodeDocument(env.Data)
	if err != nil {
		telemetry.SongSubmissions.WithLabelValues("error").Inc()
		return nil, &apperror.SubmissionError{Cause: err}
	}

	taskID, strategy, ok := FirstMatch(TaskIDExtractors, doc)
	if !ok {
		telemetry.SongSubmissions.WithLabelValues("missing_task_id").Inc()
		return nil, &apperror.SubmissionError{Cause: apperror.ErrMissingTaskID}
	}

	telemetry.SongSubmissions.WithLabelValues("success").Inc()
	s.logger.Info("song task created",
		zap.String("task_id", taskID),
		zap.String("strategy", strategy),
		zap.String("title", req.Title),
	)

	return &model.SongTask{
		TaskID:       taskID,
		AttemptCount: 0,
		Status:       model.TaskStatusPending,
		CreatedAt:    s.now(),
	}, nil
}

// Await polls the task until it finishes. The task's attempt count and
// status are updated after each poll and reported to the observer.
func (s *SongService) Await(ctx context.Context, task *model.SongTask, obs SongObserver) (*model.SongResult, error) {
	if obs == nil {
		obs = noopObserver{}
	}

	progress := 0
	return s.poller.Run(ctx, task.TaskID, func(out *PollOutcome) {
		task.AttemptCount = out.Attempt + 1
		if !out.Transient {
			task.Status = out.Status
			if p, ok := out.Status.Progress(); ok {
				progress = p
			}
		}
		obs.TaskProgress(*task, progress)
	})
}

// Run submits a job and starts polling it immediately
func (s *SongService) Run(ctx context.Context, lyrics *model.LyricsResult, session model.Session, obs SongObserver) (*model.SongResult, error) {
	if obs == nil {
		obs = noopObserver{}
	}

	task, err := s.Submit(ctx, lyrics, session)
	if err != nil {
		return nil, err
	}
	obs.TaskSubmitted(*task)

	return s.Await(ctx, task, obs)
}

// Retry starts over after a failure. Existing lyrics are reused; otherwise
// lyrics are generated first. A new remote task is always created; earlier
// tasks are never resumed or de-duplicated.
func (s *SongService) Retry(ctx context.Context, session model.Session, lyrics *model.LyricsResult, obs SongObserver) (*model.LyricsResult, *model.SongResult, error) {
	if obs == nil {
		obs = noopObserver{}
	}

	if lyrics == nil {
		generated, err := s.lyrics.Generate(ctx, session)
		if err != nil {
			return nil, nil, err
		}
		lyrics = generated
		obs.LyricsReady(lyrics)
	}

	song, err := s.Run(ctx, lyrics, session, obs)
	return lyrics, song, err
}
