package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/service"
	"github.com/noah-isme/church-music-api/pkg/response"
)

const feedMaxAge = 15 * time.Minute

type calendarService interface {
	Feed(ctx context.Context, req service.CalendarFeedRequest) ([]byte, error)
}

// CalendarHandler publishes the church schedule for calendar clients.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler builds a new handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// Feed godoc
// @Summary iCalendar feed of the church schedule
// @Tags Events
// @Produce text/calendar
// @Param start query string false "First local date, defaults to 30 days ago"
// @Param end query string false "Last local date, defaults to 180 days ahead"
// @Param access_token query string false "Token for calendar clients that cannot send headers"
// @Success 200 {string} string "VCALENDAR"
// @Router /events.ics [get]
func (h *CalendarHandler) Feed(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	feed, err := h.service.Feed(c.Request.Context(), service.CalendarFeedRequest{
		ChurchID:  actor.ChurchID,
		StartDate: c.Query("start"),
		EndDate:   c.Query("end"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Inline(c, "text/calendar; charset=utf-8", "schedule.ics", feedMaxAge, feed)
}
