package http

import (
	"net/http"

	"github.com/genc-murat/tactilesql-scheduler/internal/dto"
	"github.com/genc-murat/tactilesql-scheduler/internal/event"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupEvents(base *echo.Group) {
	base.GET("/v1/events", h.PollEvents)
}

// PollEvents drains the buffered event feed. Consumers poll this endpoint;
// events delivered here are gone from the buffer, so a single consumer is
// assumed.
func (h *HttpAPIHandler) PollEvents(c echo.Context) error {
	events := make([]event.Event, 0)
	if h.events != nil {
		for {
			select {
			case evt := <-h.events.Events():
				events = append(events, evt)
			default:
				return c.JSON(http.StatusOK, dto.NewBaseResponse(http.StatusOK, "OK", events))
			}
		}
	}
	return c.JSON(http.StatusOK, dto.NewBaseResponse(http.StatusOK, "OK", events))
}
