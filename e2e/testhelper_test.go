package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/client"
	"github.com/makeasinger/edusong/internal/config"
	"github.com/makeasinger/edusong/internal/handler"
	"github.com/makeasinger/edusong/internal/middleware"
	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/internal/repository/memory"
	"github.com/makeasinger/edusong/internal/service"
	"github.com/makeasinger/edusong/internal/telemetry"
	ws "github.com/makeasinger/edusong/internal/websocket"
	"github.com/makeasinger/edusong/internal/wizard"
)

// fakeSuno serves the music generation API. Status responses are consumed
// in order and the last one repeats.
type fakeSuno struct {
	mu       sync.Mutex
	created  int
	polls    int
	statuses []string
}

func (f *fakeSuno) setStatuses(statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
	f.polls = 0
}

func (f *fakeSuno) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeSuno) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/v1/generate":
		f.created++
		fmt.Fprintf(w, `{"code":200,"msg":"success","data":{"taskId":"task-%d"}}`, f.created)
	case "/api/v1/generate/record-info":
		data := `{"status":"PENDING"}`
		if len(f.statuses) > 0 {
			i := f.polls
			if i >= len(f.statuses) {
				i = len(f.statuses) - 1
			}
			data = f.statuses[i]
		}
		f.polls++
		fmt.Fprintf(w, `{"code":200,"msg":"success","data":%s}`, data)
	default:
		http.NotFound(w, r)
	}
}

func successStatus(url string) string {
	return fmt.Sprintf(`{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":%q}]}}`, url)
}

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	suno  *fakeSuno
	redis *miniredis.Miniredis
}

// setupApp creates a Fiber app wired like main.go. Lyrics use the
// development fallback; the music service is a local fake.
func setupApp(t *testing.T, generationsPerHour int) *testApp {
	t.Helper()
	logger := zap.NewNop()
	telemetry.Register()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	suno := &fakeSuno{}
	sunoServer := httptest.NewServer(suno)
	t.Cleanup(sunoServer.Close)

	hub := ws.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	// Chat client unconfigured so lyrics use the fallback
	openaiClient := client.NewOpenAIClient(&config.OpenAIConfig{})
	sunoCfg := config.SunoConfig{APIKey: "test-key", BaseURL: sunoServer.URL, Model: "V4_5"}
	sunoClient := client.NewSunoClient(&sunoCfg, logger)

	// Services
	lyricsService := service.NewLyricsService(openaiClient, logger)
	poller := service.NewPoller(sunoClient, config.PollingConfig{
		BaseInterval: time.Millisecond,
		MaxAttempts:  60,
	}, logger)
	songService := service.NewSongService(sunoClient, lyricsService, poller, sunoCfg, logger)

	sessions := memory.NewSessionRepository(time.Hour, time.Minute)
	t.Cleanup(sessions.Flush)
	factory := func(id string) *wizard.Machine {
		return wizard.New(id, wizard.Deps{
			Lyrics:   lyricsService,
			Songs:    songService,
			Notifier: hub,
			Logger:   logger,
		})
	}

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessions, factory, hub, logger)
	catalogHandler := handler.NewCatalogHandler(model.DefaultCatalog())
	callbackHandler := handler.NewCallbackHandler(logger)
	rateLimiter := middleware.NewRateLimiter(redisClient, logger)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai": openaiClient.IsConfigured(),
				"suno":   sunoClient.IsConfigured(),
			},
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))
	app.Post("/callback", callbackHandler.Receive)

	api := app.Group("/api")
	api.Get("/catalog", catalogHandler.Get)

	generation := rateLimiter.GenerationLimit(generationsPerHour)
	finalAnswer := rateLimiter.GenerationLimitWhen(generationsPerHour, sessionHandler.StartsGeneration)
	sessionRoutes := api.Group("/sessions")
	sessionRoutes.Post("/", sessionHandler.Create)
	sessionRoutes.Get("/:sessionId", sessionHandler.Get)
	sessionRoutes.Post("/:sessionId/advance", finalAnswer, sessionHandler.Advance)
	sessionRoutes.Post("/:sessionId/back", sessionHandler.Back)
	sessionRoutes.Post("/:sessionId/reset", sessionHandler.Reset)
	sessionRoutes.Post("/:sessionId/retry", generation, sessionHandler.Retry)

	return &testApp{app: app, suno: suno, redis: mr}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// parseView parses a wizard view response.
func parseView(t *testing.T, resp *http.Response) model.WizardView {
	t.Helper()
	body := readBody(t, resp)
	var view model.WizardView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("failed to parse view: %v\nbody: %s", err, body)
	}
	return view
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body := readBody(t, resp)
		t.Fatalf("expected status %d, got %d\nbody: %s", expected, resp.StatusCode, body)
	}
}

// assertErrorCode checks the error envelope code.
func assertErrorCode(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'error' object in response, got %v", body)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %q, got %v", expected, errObj["code"])
	}
}

var answers = []string{
	`{"value":"Ada"}`,
	`{"value":"10"}`,
	`{"value":"5"}`,
	`{"value":"Math"}`,
	`{"value":"Fractions"}`,
	`{"value":"Pop"}`,
}

// createSession starts a new wizard and returns its ID.
func createSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/api/sessions", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return parseView(t, resp).SessionID
}

// advance posts one answer and returns the raw response.
func advance(t *testing.T, app *fiber.App, sessionID, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, http.MethodPost, "/api/sessions/"+sessionID+"/advance", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// completeWizard answers every question, which starts generation.
func completeWizard(t *testing.T, app *fiber.App, sessionID string) model.WizardView {
	t.Helper()
	resp := advance(t, app, sessionID, "")
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	var view model.WizardView
	for _, answer := range answers {
		resp := advance(t, app, sessionID, answer)
		assertStatus(t, resp, http.StatusOK)
		view = parseView(t, resp)
	}
	return view
}

// waitForStep polls the session until it reaches the step.
func waitForStep(t *testing.T, app *fiber.App, sessionID string, step model.Step) model.WizardView {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doRequest(app, http.MethodGet, "/api/sessions/"+sessionID, "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		view := parseView(t, resp)
		if view.Step == step && !view.Busy {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached step %s", sessionID, step)
	return model.WizardView{}
}
