package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/apperror"
	"github.com/makeasinger/edusong/internal/client"
	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/internal/telemetry"
)

const (
	lyricsTemperature = 0.7
	lyricsMaxTokens   = 800
)

const lyricsSystemPrompt = "You are an educational songwriting assistant that creates informative and catchy lyrics to help students learn academic subjects."

// LyricsGenerator defines the interface for lyrics generation
type LyricsGenerator interface {
	Generate(ctx context.Context, session model.Session) (*model.LyricsResult, error)
}

// LyricsService generates educational song lyrics with a chat completion model
type LyricsService struct {
	chat   client.ChatCompleter
	logger *zap.Logger
	now    func() time.Time
}

// NewLyricsService creates a new lyrics service
func NewLyricsService(chat client.ChatCompleter, logger *zap.Logger) *LyricsService {
	return &LyricsService{
		chat:   chat,
		logger: logger.Named("lyrics"),
		now:    time.Now,
	}
}

// Generate issues exactly one completion request. Failures are not retried.
func (s *LyricsService) Generate(ctx context.Context, session model.Session) (*model.LyricsResult, error) {
	// Use mock response if client is not configured
	if s.chat == nil || !s.chat.IsConfigured() {
		s.logger.Info("chat client not configured, using mock lyrics")
		return s.result(mockLyrics(session), session), nil
	}

	system, user := BuildLyricsPrompt(session)

	text, err := s.chat.ChatCompletion(ctx, &client.ChatRequest{
		System:      system,
		User:        user,
		Temperature: lyricsTemperature,
		MaxTokens:   lyricsMaxTokens,
	})
	if err != nil {
		telemetry.LyricsRequests.WithLabelValues("error").Inc()
		s.logger.Warn("lyrics generation failed", zap.Error(err))
		return nil, &apperror.GenerationError{Message: err.Error(), Cause: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		telemetry.LyricsRequests.WithLabelValues("empty").Inc()
		return nil, &apperror.GenerationError{Message: "the model returned no lyrics"}
	}

	telemetry.LyricsRequests.WithLabelValues("success").Inc()
	return s.result(text, session), nil
}

func (s *LyricsService) result(text string, session model.Session) *model.LyricsResult {
	return &model.LyricsResult{
		Text:      text,
		Session:   session,
		CreatedAt: s.now(),
	}
}

// BuildLyricsPrompt returns the system and user prompts for a session.
// The output depends only on the session.
func BuildLyricsPrompt(session model.Session) (system, user string) {
	topic := session.ResolvedTopic()

	user = fmt.Sprintf(`Create educational song lyrics about %s in %s for a grade %s student named %s.
The song should be in %s style.
The lyrics should be informative, accurate, and easy to remember.
Include verses, chorus, and bridge sections.
Make it catchy and fun while ensuring all important educational content about %s is covered.
Format the output with clear section labels (Verse 1, Chorus, Verse 2, Bridge, etc.).`,
		topic, session.Subject, session.Grade, session.Name, session.Genre, topic)

	return lyricsSystemPrompt, user
}

// mockLyrics is used for development when no text generation key is configured
func mockLyrics(session model.Session) string {
	topic := session.ResolvedTopic()
	return fmt.Sprintf(`[Verse 1]
Hey %s, let's learn something new
%s in %s, we'll see it through

[Chorus]
Sing it loud and sing it clear
%s is what we're learning here

[Bridge]
Step by step and line by line
Every lesson falls in rhyme`, session.Name, topic, session.Subject, topic)
}
