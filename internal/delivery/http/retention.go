package http

import (
	"net/http"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupRetention(base *echo.Group) {
	v1 := base.Group("/v1/retention")
	{
		v1.GET("", h.GetRetention)
		v1.PUT("", h.SetRetention)
		v1.POST("/purge", h.ForcePurge)
	}
}

func (h *HttpAPIHandler) GetRetention(c echo.Context) error {
	days, err := h.service.RetentionService.GetRetentionDays(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Retention policy", map[string]int{"days": days}))
}

func (h *HttpAPIHandler) SetRetention(c echo.Context) error {
	var req dto.SetRetentionRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.service.RetentionService.SetRetentionDays(c.Request().Context(), req.Days, actor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Retention policy updated", map[string]int{"days": req.Days}))
}

func (h *HttpAPIHandler) ForcePurge(c echo.Context) error {
	var req dto.ForcePurgeRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	result, err := h.service.RetentionService.ForcePurge(c.Request().Context(), req.Days, actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Purge completed", result))
}
