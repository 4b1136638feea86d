package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	LyricsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edusong_lyrics_requests_total",
		Help: "Lyrics generation calls by outcome",
	}, []string{"outcome"})

	SongSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edusong_song_submissions_total",
		Help: "Song generation jobs submitted by outcome",
	}, []string{"outcome"})

	StatusPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edusong_status_polls_total",
		Help: "Song status checks by outcome (pending, transient, success, failed, error, timeout)",
	}, []string{"outcome"})

	ClassifiedFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edusong_failures_total",
		Help: "Failures surfaced to users by classified kind",
	}, []string{"kind"})

	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edusong_rate_limit_rejects_total",
		Help: "Requests rejected by the rate limiter",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "edusong_active_sessions",
		Help: "Wizard sessions currently held in memory",
	})
)

// Register adds the collectors to the default registry once
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			LyricsRequests,
			SongSubmissions,
			StatusPolls,
			ClassifiedFailures,
			RateLimitRejects,
			ActiveSessions,
		)
	})
}

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
