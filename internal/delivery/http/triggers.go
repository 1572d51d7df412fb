package http

import (
	"database/sql"
	"net/http"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"
	"github.com/genc-murat/tactilesql-scheduler/internal/model"
	"github.com/genc-murat/tactilesql-scheduler/pkg/utils"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupTriggers(base *echo.Group) {
	v1 := base.Group("/v1/triggers")
	{
		v1.POST("", h.CreateTrigger)
		v1.GET("", h.ListTriggers)
		v1.GET("/:id", h.GetTrigger)
		v1.PUT("/:id", h.UpdateTrigger)
		v1.DELETE("/:id", h.DeleteTrigger)
	}
}

func (h *HttpAPIHandler) CreateTrigger(c echo.Context) error {
	var req dto.CreateTriggerRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}

	trigger := &model.TaskTrigger{
		TaskID:          req.TaskID,
		TriggerType:     model.TriggerType(req.TriggerType),
		CronExpression:  req.CronExpression,
		IntervalSeconds: req.IntervalSeconds,
		Timezone:        req.Timezone,
		MisfirePolicy:   model.MisfirePolicy(req.MisfirePolicy),
		MaxAttempts:     req.MaxAttempts,
		BackoffMs:       req.BackoffMs,
		Enabled:         true,
	}
	if req.RunAt != nil {
		trigger.RunAt = sql.NullTime{Time: req.RunAt.UTC(), Valid: true}
	}
	if req.Enabled != nil {
		trigger.Enabled = *req.Enabled
	}
	if trigger.BackoffMs == 0 {
		trigger.BackoffMs = 1000
	}

	created, err := h.service.TaskService.CreateTrigger(c.Request().Context(), trigger, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewBaseResponse(http.StatusCreated, "Trigger created", created))
}

func (h *HttpAPIHandler) GetTrigger(c echo.Context) error {
	trigger, err := h.service.TaskService.GetTrigger(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Trigger found", trigger))
}

func (h *HttpAPIHandler) ListTriggers(c echo.Context) error {
	param := &model.GetTriggerParam{}
	if taskID := c.QueryParam("task_id"); taskID != "" {
		param.TaskID = utils.ToPointer(taskID)
	}
	if enabled := c.QueryParam("enabled"); enabled != "" {
		param.Enabled = utils.ToPointer(enabled == "true")
	}
	if limit := queryInt(c, "limit"); limit > 0 {
		param.Limit = utils.ToPointer(limit)
	}

	triggers, err := h.service.TaskService.ListTriggers(c.Request().Context(), param)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Triggers listed", triggers))
}

func (h *HttpAPIHandler) UpdateTrigger(c echo.Context) error {
	var req dto.UpdateTriggerRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}

	existing, err := h.service.TaskService.GetTrigger(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	if req.CronExpression != "" {
		existing.CronExpression = req.CronExpression
	}
	if req.IntervalSeconds > 0 {
		existing.IntervalSeconds = req.IntervalSeconds
	}
	if req.RunAt != nil {
		existing.RunAt = sql.NullTime{Time: req.RunAt.UTC(), Valid: true}
	}
	if req.Timezone != "" {
		existing.Timezone = req.Timezone
	}
	if req.MisfirePolicy != "" {
		existing.MisfirePolicy = model.MisfirePolicy(req.MisfirePolicy)
	}
	if req.MaxAttempts != nil {
		existing.MaxAttempts = *req.MaxAttempts
	}
	if req.BackoffMs != nil {
		existing.BackoffMs = *req.BackoffMs
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	updated, err := h.service.TaskService.UpdateTrigger(c.Request().Context(), existing, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Trigger updated", updated))
}

func (h *HttpAPIHandler) DeleteTrigger(c echo.Context) error {
	if err := h.service.TaskService.DeleteTrigger(c.Request().Context(), c.Param("id"), actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Trigger deleted", nil))
}
