package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/models"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/response"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

type activityService interface {
	Recent(ctx context.Context, churchID string, limit int) ([]models.ActivityLog, error)
}

// ActivityHandler lists the church's activity log.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler builds a new handler.
func NewActivityHandler(service activityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// Recent godoc
// @Summary Recent activity
// @Tags Activity
// @Produce json
// @Param limit query int false "At most 200, default 50"
// @Success 200 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) Recent(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxActivityLimit {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and 200"))
			return
		}
		limit = parsed
	}
	entries, err := h.service.Recent(c.Request.Context(), actor.ChurchID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
