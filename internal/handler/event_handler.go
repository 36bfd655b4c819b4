package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/service"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/response"
)

type eventService interface {
	List(ctx context.Context, req service.ListEventsRequest) ([]models.EventDetail, error)
	Get(ctx context.Context, churchID, id string) (*models.EventDetail, error)
	Create(ctx context.Context, req service.CreateEventRequest) (*service.CreateEventResult, error)
	Update(ctx context.Context, churchID, id, actorID string, req service.UpdateEventRequest) (*models.EventDetail, error)
	Delete(ctx context.Context, churchID, id, actorID string, scope models.DeleteScope) (*models.DeletionSummary, error)
}

// EventHandler exposes event scheduling endpoints.
type EventHandler struct {
	service eventService
}

// NewEventHandler builds a new handler.
func NewEventHandler(service eventService) *EventHandler {
	return &EventHandler{service: service}
}

// List godoc
// @Summary List events
// @Description Dates are church-local YYYY-MM-DD. Each event embeds its assignments.
// @Tags Events
// @Produce json
// @Param status query string false "confirmed, tentative, cancelled, pending or error"
// @Param start query string false "First local date"
// @Param end query string false "Last local date"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	events, err := h.service.List(c.Request.Context(), service.ListEventsRequest{
		ChurchID:  actor.ChurchID,
		Status:    c.Query("status"),
		StartDate: c.Query("start"),
		EndDate:   c.Query("end"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil, map[string]interface{}{"count": len(events)})
}

// Get godoc
// @Summary Get event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	event, err := h.service.Get(c.Request.Context(), actor.ChurchID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create event
// @Description A recurring event also creates every series instance up to the recurrence end.
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	req.ChurchID = actor.ChurchID
	req.CreatedBy = actor.UserID
	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Update event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	event, err := h.service.Update(c.Request.Context(), actor.ChurchID, c.Param("id"), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete event
// @Description scope applies to recurring series: single, future or all. Defaults to single.
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Param scope query string false "single, future or all"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scope := models.DeleteScope(strings.ToLower(c.DefaultQuery("scope", string(models.DeleteScopeSingle))))
	switch scope {
	case models.DeleteScopeSingle, models.DeleteScopeFuture, models.DeleteScopeAll:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "scope must be single, future or all"))
		return
	}
	summary, err := h.service.Delete(c.Request.Context(), actor.ChurchID, c.Param("id"), actor.UserID, scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
