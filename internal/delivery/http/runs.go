package http

import (
	"net/http"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupRuns(base *echo.Group) {
	v1 := base.Group("/v1")
	{
		v1.GET("/runs/:id/logs", h.GetRunLogs)
		v1.POST("/runs/:id/cancel", h.CancelRun)
		v1.POST("/runs/:id/retry", h.RetryRun)
		v1.GET("/audit-logs", h.ListAuditLogs)
	}
}

func (h *HttpAPIHandler) GetRunLogs(c echo.Context) error {
	limit := queryInt(c, "limit")
	if limit <= 0 {
		limit = 200
	}
	logs, err := h.service.TaskService.GetRunLogs(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Run logs listed", logs))
}

func (h *HttpAPIHandler) CancelRun(c echo.Context) error {
	run, err := h.service.SchedulerService.CancelRun(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Run cancelled", run))
}

func (h *HttpAPIHandler) RetryRun(c echo.Context) error {
	run, err := h.service.SchedulerService.RetryRun(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, dto.NewBaseResponse(http.StatusAccepted, "Run retry started", run))
}

func (h *HttpAPIHandler) ListAuditLogs(c echo.Context) error {
	param := &model.GetAuditLogParam{}
	if eventType := c.QueryParam("event_type"); eventType != "" {
		param.EventType = utils.ToPointer(eventType)
	}
	if taskID := c.QueryParam("task_id"); taskID != "" {
		param.TaskID = utils.ToPointer(taskID)
	}
	if limit := queryInt(c, "limit"); limit > 0 {
		param.Limit = utils.ToPointer(limit)
	} else {
		param.Limit = utils.ToPointer(100)
	}

	logs, err := h.service.TaskService.ListAuditLogs(c.Request().Context(), param)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Audit logs listed", logs))
}
