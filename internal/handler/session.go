package handler

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/internal/apperror"
	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/internal/repository/memory"
	ws "github.com/makeasinger/edusong/internal/websocket"
	"github.com/makeasinger/edusong/internal/wizard"
	"github.com/makeasinger/edusong/pkg/response"
)

// SessionFactory creates a wizard session with the given ID
type SessionFactory func(id string) *wizard.Machine

type SessionHandler struct {
	sessions   *memory.SessionRepository
	newSession SessionFactory
	hub        *ws.Hub
	logger     *zap.Logger
}

func NewSessionHandler(sessions *memory.SessionRepository, factory SessionFactory, hub *ws.Hub, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		newSession: factory,
		hub:        hub,
		logger:     logger.Named("session"),
	}
}

// Create handles POST /api/sessions
// @Summary      Start a wizard session
// @Description  Create a new song wizard session at the welcome step
// @Tags         Sessions
// @Produce      json
// @Success      201 {object} model.WizardView
// @Router       /api/sessions [post]
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	m := h.newSession(uuid.New().String())
	h.sessions.Save(m)

	h.logger.Info("session created", zap.String("session_id", m.ID()))
	return response.Created(c, m.View())
}

// Get handles GET /api/sessions/:sessionId
// @Summary      Get session state
// @Description  Get the current wizard view of a session
// @Tags         Sessions
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} model.WizardView
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/sessions/{sessionId} [get]
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	m, err := h.lookup(c)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, m.View())
}

// Advance handles POST /api/sessions/:sessionId/advance
// @Summary      Answer the current step
// @Description  Validate and store the answer for the current step and move forward. Leaving the last question starts generation.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body model.AdvanceRequest false "Answer"
// @Success      200 {object} model.WizardView
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/sessions/{sessionId}/advance [post]
func (h *SessionHandler) Advance(c *fiber.Ctx) error {
	m, err := h.lookup(c)
	if err != nil {
		return writeError(c, err)
	}

	var req model.AdvanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	view, err := m.Advance(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, view)
}

// Back handles POST /api/sessions/:sessionId/back
// @Summary      Go back one step
// @Tags         Sessions
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} model.WizardView
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Router       /api/sessions/{sessionId}/back [post]
func (h *SessionHandler) Back(c *fiber.Ctx) error {
	m, err := h.lookup(c)
	if err != nil {
		return writeError(c, err)
	}

	view, err := m.Retreat()
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, view)
}

// Reset handles POST /api/sessions/:sessionId/reset
// @Summary      Start over
// @Description  Clear every answer and result and cancel any running generation
// @Tags         Sessions
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} model.WizardView
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/sessions/{sessionId}/reset [post]
func (h *SessionHandler) Reset(c *fiber.Ctx) error {
	m, err := h.lookup(c)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, m.Reset())
}

// Retry handles POST /api/sessions/:sessionId/retry
// @Summary      Retry a failed generation
// @Description  Submit a new song job after a failure, reusing the lyrics when present
// @Tags         Sessions
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} model.WizardView
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/sessions/{sessionId}/retry [post]
func (h *SessionHandler) Retry(c *fiber.Ctx) error {
	m, err := h.lookup(c)
	if err != nil {
		return writeError(c, err)
	}

	view, err := m.Retry(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, view)
}

// StartsGeneration reports whether an advance request answers the last
// question, so the generation rate limit applies to it
func (h *SessionHandler) StartsGeneration(c *fiber.Ctx) bool {
	m, ok := h.sessions.Get(c.Params("sessionId"))
	if !ok {
		return false
	}
	var req model.AdvanceRequest
	if len(c.Body()) > 0 && c.BodyParser(&req) != nil {
		return false
	}
	return m.Completes(req)
}

// RequireSession rejects websocket upgrades for unknown sessions
func (h *SessionHandler) RequireSession(c *fiber.Ctx) error {
	if _, err := h.lookup(c); err != nil {
		return writeError(c, err)
	}
	return c.Next()
}

// Stream handles GET /ws/sessions/:sessionId
func (h *SessionHandler) Stream(c *websocket.Conn) {
	m, ok := h.sessions.Get(c.Params("sessionId"))
	if !ok {
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session not found"))
		return
	}
	h.hub.HandleConnection(c, m.View())
}

func (h *SessionHandler) lookup(c *fiber.Ctx) (*wizard.Machine, error) {
	m, ok := h.sessions.Get(c.Params("sessionId"))
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}
	return m, nil
}

// writeError maps wizard errors to HTTP responses
func writeError(c *fiber.Ctx, err error) error {
	var verr *apperror.ValidationError
	switch {
	case errors.As(err, &verr):
		return response.ValidationError(c, verr.Message, fiber.Map{"step": verr.Step})
	case errors.Is(err, apperror.ErrSessionNotFound):
		return response.NotFound(c, "Session not found")
	case errors.Is(err, apperror.ErrBusy),
		errors.Is(err, apperror.ErrGenerationStarted),
		errors.Is(err, apperror.ErrNothingToRetry):
		return response.Conflict(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
