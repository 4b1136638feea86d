package wizard

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/apperror"
	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/internal/service"
	"github.com/makeasinger/edusong/internal/telemetry"
)

// Notifier receives every state change of a wizard session
type Notifier interface {
	BroadcastState(view model.WizardView)
	BroadcastProgress(sessionID string, task model.SongTask, progress int)
	BroadcastComplete(sessionID string, song model.SongResult, lyrics *model.LyricsResult)
	BroadcastError(sessionID string, failure apperror.Classification)
}

// SongRunner produces a song from lyrics
type SongRunner interface {
	Run(ctx context.Context, lyrics *model.LyricsResult, session model.Session, obs service.SongObserver) (*model.SongResult, error)
	Retry(ctx context.Context, session model.Session, lyrics *model.LyricsResult, obs service.SongObserver) (*model.LyricsResult, *model.SongResult, error)
}

// Deps are the collaborators shared by every wizard session
type Deps struct {
	Lyrics   service.LyricsGenerator
	Songs    SongRunner
	Notifier Notifier
	Logger   *zap.Logger
	Steps    []model.Step

	// Spawn runs a pipeline; defaults to a plain goroutine
	Spawn func(func())
}

// Machine is one learner's wizard session. All methods are safe for
// concurrent use; the lock is never held across network calls.
type Machine struct {
	mu sync.Mutex

	id       string
	steps    []model.Step
	step     model.Step
	index    int // position within steps while collecting
	session  model.Session
	snapshot model.Session

	lyrics   *model.LyricsResult
	task     *model.SongTask
	song     *model.SongResult
	failure  *apperror.Classification
	progress int

	busy          bool
	failed        bool
	songAttempted bool
	token         uint64
	cancel        context.CancelFunc

	// version numbers every state change; emitted is the newest one
	// delivered to the notifier
	version uint64
	emitMu  sync.Mutex
	emitted uint64

	lyricsGen service.LyricsGenerator
	songs     SongRunner
	notifier  Notifier
	logger    *zap.Logger
	validate  *validator.Validate
	spawn     func(func())
}

// New creates a wizard session at the welcome step
func New(id string, deps Deps) *Machine {
	steps := deps.Steps
	if len(steps) == 0 {
		steps = model.CollectionSteps
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	spawn := deps.Spawn
	if spawn == nil {
		spawn = func(f func()) { go f() }
	}

	return &Machine{
		id:        id,
		steps:     append([]model.Step(nil), steps...),
		step:      model.StepWelcome,
		lyricsGen: deps.Lyrics,
		songs:     deps.Songs,
		notifier:  deps.Notifier,
		logger:    logger.With(zap.String("session_id", id)),
		validate:  validator.New(),
		spawn:     spawn,
	}
}

// ID returns the session identifier
func (m *Machine) ID() string {
	return m.id
}

// View returns a snapshot of the session
func (m *Machine) View() model.WizardView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Advance answers the current step and moves forward. Leaving the last
// collection step starts generation in the background.
func (m *Machine) Advance(ctx context.Context, in model.AdvanceRequest) (model.WizardView, error) {
	m.mu.Lock()

	switch {
	case m.step == model.StepWelcome:
		m.index = 0
		m.step = m.steps[0]

	case m.step.IsCollection():
		value, custom, err := validateStep(m.validate, m.step, in)
		if err != nil {
			m.mu.Unlock()
			return model.WizardView{}, err
		}
		answer(&m.session, m.step, value, custom)

		if m.index+1 < len(m.steps) {
			m.index++
			m.step = m.steps[m.index]
			break
		}

		if step, missing := missingStep(m.steps, m.session); missing {
			m.mu.Unlock()
			return model.WizardView{}, &apperror.ValidationError{Step: string(step), Message: rules[step].message}
		}

		m.snapshot = m.session
		m.step = model.StepGeneratingLyrics
		m.songAttempted = false
		m.startLocked(ctx, nil, false)

	default:
		m.mu.Unlock()
		return model.WizardView{}, apperror.ErrGenerationStarted
	}

	view := m.changedLocked()
	m.mu.Unlock()

	m.publish(view)
	return view, nil
}

// Completes reports whether the answer would finish the questionnaire and
// start generation. The session is left untouched.
func (m *Machine) Completes(in model.AdvanceRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.step.IsCollection() || m.index+1 < len(m.steps) {
		return false
	}
	value, custom, err := validateStep(m.validate, m.step, in)
	if err != nil {
		return false
	}
	session := m.session
	answer(&session, m.step, value, custom)
	_, missing := missingStep(m.steps, session)
	return !missing
}

// Retreat returns to the previous collection step
func (m *Machine) Retreat() (model.WizardView, error) {
	m.mu.Lock()

	if m.busy {
		m.mu.Unlock()
		return model.WizardView{}, apperror.ErrBusy
	}

	switch {
	case m.step == model.StepWelcome:
		view := m.viewLocked()
		m.mu.Unlock()
		return view, nil
	case !m.step.IsCollection():
		m.mu.Unlock()
		return model.WizardView{}, apperror.ErrGenerationStarted
	case m.index == 0:
		m.step = model.StepWelcome
	default:
		m.index--
		m.step = m.steps[m.index]
	}

	view := m.changedLocked()
	m.mu.Unlock()

	m.publish(view)
	return view, nil
}

// Reset clears the session and returns to the welcome step. Any pipeline
// still running is cancelled and its results are discarded.
func (m *Machine) Reset() model.WizardView {
	m.mu.Lock()

	m.token++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	m.step = model.StepWelcome
	m.index = 0
	m.session = model.Session{}
	m.snapshot = model.Session{}
	m.lyrics = nil
	m.task = nil
	m.song = nil
	m.failure = nil
	m.progress = 0
	m.busy = false
	m.failed = false
	m.songAttempted = false

	view := m.changedLocked()
	m.mu.Unlock()

	m.logger.Info("session reset")
	m.publish(view)
	return view
}

// Retry starts a new generation after a failed run. Existing lyrics are
// reused; a new remote task is always created.
func (m *Machine) Retry(ctx context.Context) (model.WizardView, error) {
	m.mu.Lock()

	if m.busy {
		m.mu.Unlock()
		return model.WizardView{}, apperror.ErrBusy
	}
	if !m.failed {
		m.mu.Unlock()
		return model.WizardView{}, apperror.ErrNothingToRetry
	}

	m.failed = false
	m.failure = nil
	m.song = nil
	m.task = nil
	m.progress = 0
	m.songAttempted = true
	if m.lyrics == nil {
		m.step = model.StepGeneratingLyrics
	} else {
		m.step = model.StepAwaitingSong
	}
	m.startLocked(ctx, m.lyrics, true)

	view := m.changedLocked()
	m.mu.Unlock()

	m.logger.Info("retrying generation", zap.Bool("reuse_lyrics", view.Lyrics != nil))
	m.publish(view)
	return view, nil
}

// startLocked stamps a new generation token and launches the pipeline.
// The pipeline context keeps ctx values but not its cancellation.
func (m *Machine) startLocked(ctx context.Context, lyrics *model.LyricsResult, retry bool) {
	m.token++
	token := m.token
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.busy = true

	session := m.snapshot
	m.spawn(func() {
		defer cancel()
		if retry {
			m.runRetry(runCtx, token, session, lyrics)
			return
		}
		m.run(runCtx, token, session)
	})
}

func (m *Machine) run(ctx context.Context, token uint64, session model.Session) {
	obs := &boundObserver{m: m, token: token}

	lyrics, err := m.lyricsGen.Generate(ctx, session)
	if err != nil {
		m.finish(token, nil, nil, err)
		return
	}
	obs.LyricsReady(lyrics)

	if !m.claimSong(token) {
		return
	}

	song, err := m.songs.Run(ctx, lyrics, session, obs)
	m.finish(token, nil, song, err)
}

func (m *Machine) runRetry(ctx context.Context, token uint64, session model.Session, lyrics *model.LyricsResult) {
	obs := &boundObserver{m: m, token: token}
	lyrics, song, err := m.songs.Retry(ctx, session, lyrics, obs)
	m.finish(token, lyrics, song, err)
}

// claimSong marks the song as attempted for the current lyrics and session.
// It returns false when the run is stale or a submission already happened.
func (m *Machine) claimSong(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.token || m.songAttempted {
		return false
	}
	m.songAttempted = true
	return true
}

func (m *Machine) finish(token uint64, lyrics *model.LyricsResult, song *model.SongResult, err error) {
	m.mu.Lock()

	if token != m.token {
		m.mu.Unlock()
		m.logger.Debug("discarding result of a cancelled run", zap.Error(err))
		return
	}

	m.busy = false
	m.cancel = nil
	m.step = model.StepShowResult
	if lyrics != nil {
		m.lyrics = lyrics
	}

	if err != nil {
		// the run is over, so nothing retries on its own any more
		c := apperror.Classify(err).Stopped()
		m.failure = &c
		m.failed = true
		view := m.changedLocked()
		m.mu.Unlock()

		telemetry.ClassifiedFailures.WithLabelValues(string(c.Kind)).Inc()
		m.logger.Warn("generation failed", zap.String("kind", string(c.Kind)), zap.Error(err))
		m.emit(view.Version, func() {
			m.notifier.BroadcastError(m.id, c)
			m.notifier.BroadcastState(view)
		})
		return
	}

	m.song = song
	m.progress = 100
	view := m.changedLocked()
	m.mu.Unlock()

	m.logger.Info("song ready", zap.String("task_id", song.TaskID))
	m.emit(view.Version, func() {
		m.notifier.BroadcastComplete(m.id, *song, view.Lyrics)
		m.notifier.BroadcastState(view)
	})
}

func (m *Machine) publish(view model.WizardView) {
	m.emit(view.Version, func() { m.notifier.BroadcastState(view) })
}

// emit delivers notifications in version order. Anything older than what
// subscribers have already seen is dropped.
func (m *Machine) emit(version uint64, send func()) {
	if m.notifier == nil {
		return
	}
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if version <= m.emitted {
		return
	}
	m.emitted = version
	send()
}

// changedLocked records a state change and returns the new view
func (m *Machine) changedLocked() model.WizardView {
	m.version++
	return m.viewLocked()
}

func (m *Machine) viewLocked() model.WizardView {
	view := model.WizardView{
		SessionID:  m.id,
		Step:       m.step,
		StepIndex:  m.stepIndexLocked(),
		TotalSteps: len(m.steps) + 4,
		Session:    m.session,
		Busy:       m.busy,
		Progress:   m.progress,
		Lyrics:     m.lyrics,
		Song:       m.song,
		CanRetry:   m.failed && !m.busy,
		Version:    m.version,
	}

	if r, ok := rules[m.step]; ok {
		view.Question = r.question
	} else {
		view.Question = phaseQuestions[m.step]
	}
	if !m.step.IsCollection() && m.step != model.StepWelcome {
		view.Session = m.snapshot
	}
	if m.song != nil {
		view.FileName = m.snapshot.SongFileName()
	}
	if m.task != nil {
		task := *m.task
		view.Task = &task
	}
	if m.failure != nil {
		c := *m.failure
		view.Error = &c
	}
	return view
}

func (m *Machine) stepIndexLocked() int {
	switch m.step {
	case model.StepWelcome:
		return 0
	case model.StepGeneratingLyrics:
		return len(m.steps) + 1
	case model.StepAwaitingSong:
		return len(m.steps) + 2
	case model.StepShowResult:
		return len(m.steps) + 3
	default:
		return m.index + 1
	}
}

// boundObserver applies pipeline updates only while its token is current
type boundObserver struct {
	m     *Machine
	token uint64
}

func (o *boundObserver) LyricsReady(lyrics *model.LyricsResult) {
	m := o.m
	m.mu.Lock()
	if o.token != m.token {
		m.mu.Unlock()
		return
	}
	m.lyrics = lyrics
	m.step = model.StepAwaitingSong
	view := m.changedLocked()
	m.mu.Unlock()

	m.publish(view)
}

func (o *boundObserver) TaskSubmitted(task model.SongTask) {
	m := o.m
	m.mu.Lock()
	if o.token != m.token {
		m.mu.Unlock()
		return
	}
	m.task = &task
	m.step = model.StepAwaitingSong
	view := m.changedLocked()
	m.mu.Unlock()

	m.logger.Info("song task submitted", zap.String("task_id", task.TaskID))
	m.publish(view)
}

func (o *boundObserver) TaskProgress(task model.SongTask, progress int) {
	m := o.m
	m.mu.Lock()
	if o.token != m.token {
		m.mu.Unlock()
		return
	}
	m.task = &task
	m.progress = progress
	m.version++
	version := m.version
	m.mu.Unlock()

	m.emit(version, func() { m.notifier.BroadcastProgress(m.id, task, progress) })
}
