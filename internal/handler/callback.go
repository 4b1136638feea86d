package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/makeasinger/edusong/pkg/response"
)

// callbackPayload is the notification the music service posts when a task changes state
type callbackPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		CallbackType string `json:"callbackType"`
		TaskID       string `json:"task_id"`
	} `json:"data"`
}

type CallbackHandler struct {
	logger *zap.Logger
}

func NewCallbackHandler(logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{logger: logger.Named("callback")}
}

// Receive handles POST /callback
// @Summary      Music service callback
// @Description  Acknowledge task notifications. Completion is detected by polling.
// @Tags         Callback
// @Accept       json
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /callback [post]
func (h *CallbackHandler) Receive(c *fiber.Ctx) error {
	var payload callbackPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("unreadable callback", zap.Error(err))
		return response.OK(c, fiber.Map{"status": "ignored"})
	}

	h.logger.Info("callback received",
		zap.Int("code", payload.Code),
		zap.String("msg", payload.Msg),
		zap.String("callback_type", payload.Data.CallbackType),
		zap.String("task_id", payload.Data.TaskID),
	)
	return response.OK(c, fiber.Map{"status": "received"})
}
