package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"
	"github.com/genc-murat/tactilesql-scheduler/internal/errs"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"
	"github.com/genc-murat/tactilesql-scheduler/internal/service"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
	events    *event.ChannelSink
}

func NewHttpAPIHandler(ctx context.Context, echo *echo.Echo, validator *goValidator.Validate, service *service.Service, events *event.ChannelSink) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		service:   service,
		events:    events,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	base := h.echo.Group("/api")
	h.SetupTasks(base)
	h.SetupTriggers(base)
	h.SetupRuns(base)
	h.SetupScheduler(base)
	h.SetupRetention(base)
	h.SetupEvents(base)
}

// actor identifies the operator behind a state-changing request; the UI
// layer sets the header, everything else is attributed to "api".
func actor(c echo.Context) string {
	if a := c.Request().Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

func respondError(c echo.Context, err error) error {
	var (
		notFound   *errs.NotFoundError
		validation *errs.ValidationError
		store      *errs.StoreError
	)
	switch {
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil))
	case errors.As(err, &validation):
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	case errors.As(err, &store):
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, "storage failure", nil))
	default:
		return c.JSON(http.StatusInternalServerError, dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil))
	}
}

func marshalJSON(v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte(`null`))
	}
	return datatypes.JSON(raw)
}

func (h *HttpAPIHandler) bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errs.NewValidation("invalid request body: %v", err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errs.NewValidation("%v", err)
	}
	return nil
}
