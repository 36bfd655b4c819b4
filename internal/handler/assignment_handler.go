package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/dto"
	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/service"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/response"
)

type assignmentService interface {
	OpenSlot(ctx context.Context, actor service.Actor, req service.OpenSlotRequest) (*models.Assignment, error)
	AssignIndividual(ctx context.Context, actor service.Actor, slotID, musicianID string) (*models.Assignment, error)
	AssignGroup(ctx context.Context, actor service.Actor, eventID, groupID string) (*models.Assignment, error)
	RemoveIndividual(ctx context.Context, actor service.Actor, slotID string) (*models.Assignment, error)
	RemoveGroup(ctx context.Context, actor service.Actor, eventID, groupID string) ([]string, error)
	Signup(ctx context.Context, actor service.Actor, slotID, musicianID string) (*models.Assignment, error)
	Accept(ctx context.Context, actor service.Actor, slotID string) (*models.Assignment, error)
	Decline(ctx context.Context, actor service.Actor, slotID string) (*models.Assignment, error)
	Occupancy(ctx context.Context, actor service.Actor, eventID string) ([]models.Occupant, error)
	EligibleIndividuals(ctx context.Context, actor service.Actor, eventID string, pendingGroupIDs []string) ([]models.UserSummary, error)
}

// AssignmentHandler exposes slot assignment endpoints.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler builds a new handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// Open godoc
// @Summary Open a role slot on an event
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.OpenSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Open(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.OpenSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	slot, err := h.service.OpenSlot(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Assign, remove or respond to a slot
// @Description Body is one of {"musician_id":"..."}, {"musician_id":null} or {"action":"accept"|"decline"}.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.AssignmentUpdateRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignmentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}

	if (req.Kind == dto.AssignmentAssign || req.Kind == dto.AssignmentRemove) && !actor.Role.IsLeadership() {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only leadership can assign or remove musicians"))
		return
	}

	ctx, slotID := c.Request.Context(), c.Param("id")
	var (
		slot *models.Assignment
		err  error
	)
	switch req.Kind {
	case dto.AssignmentAssign:
		slot, err = h.service.AssignIndividual(ctx, actor, slotID, req.MusicianID)
	case dto.AssignmentRemove:
		slot, err = h.service.RemoveIndividual(ctx, actor, slotID)
	case dto.AssignmentAccept:
		slot, err = h.service.Accept(ctx, actor, slotID)
	case dto.AssignmentDecline:
		slot, err = h.service.Decline(ctx, actor, slotID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Signup godoc
// @Summary Sign the caller up for an open slot
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/signup [post]
func (h *AssignmentHandler) Signup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	slot, err := h.service.Signup(c.Request.Context(), actor, c.Param("id"), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// AssignGroup godoc
// @Summary Assign a group to an event
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.AssignGroupRequest true "Group"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/groups [post]
func (h *AssignmentHandler) AssignGroup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "group_id is required"))
		return
	}
	slot, err := h.service.AssignGroup(c.Request.Context(), actor, c.Param("id"), req.GroupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// RemoveGroup godoc
// @Summary Remove a group from an event
// @Tags Assignments
// @Produce json
// @Param id path string true "Event ID"
// @Param groupId path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/groups/{groupId} [delete]
func (h *AssignmentHandler) RemoveGroup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	released, err := h.service.RemoveGroup(c.Request.Context(), actor, c.Param("id"), c.Param("groupId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"released_assignment_ids": released}, nil)
}

// Eligible godoc
// @Summary List musicians still free to take an individual role
// @Tags Assignments
// @Produce json
// @Param id path string true "Event ID"
// @Param pending_group_ids query string false "Comma separated groups selected but not yet saved"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/eligible [get]
func (h *AssignmentHandler) Eligible(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	musicians, err := h.service.EligibleIndividuals(c.Request.Context(), actor, c.Param("id"), splitIDs(c.Query("pending_group_ids")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, musicians, nil)
}

// Occupancy godoc
// @Summary List who fills a role on an event and how
// @Tags Assignments
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/occupancy [get]
func (h *AssignmentHandler) Occupancy(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	occupants, err := h.service.Occupancy(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupants, nil)
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
