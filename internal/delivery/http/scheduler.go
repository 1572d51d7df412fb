package http

import (
	"net/http"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"
	"github.com/genc-murat/tactilesql-scheduler/internal/service"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupScheduler(base *echo.Group) {
	v1 := base.Group("/v1/scheduler")
	{
		v1.GET("/state", h.GetSchedulerState)
		v1.PUT("/state", h.SetSchedulerState)
		v1.POST("/pause", h.PauseScheduler)
		v1.POST("/resume", h.ResumeScheduler)
		v1.POST("/disable", h.DisableScheduler)
	}
}

func (h *HttpAPIHandler) GetSchedulerState(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Scheduler state", map[string]string{
		"scheduler_id": h.service.SchedulerService.SchedulerID(),
		"state":        string(h.service.SchedulerService.State()),
	}))
}

func (h *HttpAPIHandler) SetSchedulerState(c echo.Context) error {
	var req dto.SetSchedulerStateRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	return h.applySchedulerState(c, service.SchedulerState(req.State))
}

func (h *HttpAPIHandler) PauseScheduler(c echo.Context) error {
	return h.applySchedulerState(c, service.StatePaused)
}

func (h *HttpAPIHandler) ResumeScheduler(c echo.Context) error {
	return h.applySchedulerState(c, service.StateRunning)
}

func (h *HttpAPIHandler) DisableScheduler(c echo.Context) error {
	return h.applySchedulerState(c, service.StateDisabled)
}

func (h *HttpAPIHandler) applySchedulerState(c echo.Context, state service.SchedulerState) error {
	if err := h.service.SchedulerService.SetState(c.Request().Context(), state, actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Scheduler state updated", map[string]string{
		"state": string(state),
	}))
}
