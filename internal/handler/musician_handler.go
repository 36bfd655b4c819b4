package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/service"
	"github.com/noah-isme/church-music-api/pkg/response"
)

type musicianService interface {
	List(ctx context.Context, actor service.Actor, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.User, error)
}

// MusicianHandler exposes the church member directory.
type MusicianHandler struct {
	service musicianService
}

// NewMusicianHandler builds a new handler.
func NewMusicianHandler(service musicianService) *MusicianHandler {
	return &MusicianHandler{service: service}
}

// List godoc
// @Summary List church members
// @Tags Musicians
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size, at most 100"
// @Param role query string false "Role filter"
// @Param verified query bool false "Only verified or unverified accounts"
// @Param search query string false "Matches email or name"
// @Param sort_by query string false "email, first_name, last_name or created_at"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /musicians [get]
func (h *MusicianHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var filter models.UserFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	if verified := c.Query("verified"); verified != "" {
		if val, err := strconv.ParseBool(verified); err == nil {
			filter.Verified = &val
		}
	}
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	users, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get a church member
// @Tags Musicians
// @Produce json
// @Param id path string true "Musician ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /musicians/{id} [get]
func (h *MusicianHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}
