package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/dto"
	"github.com/noah-isme/church-music-api/internal/models"
	"github.com/noah-isme/church-music-api/internal/service"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/response"
)

const maxImportBytes = 2 << 20

type invitationService interface {
	Invite(ctx context.Context, actor service.Actor, record models.InviteRecord) (*models.InvitationResult, error)
	InviteBulk(ctx context.Context, actor service.Actor, records []models.InviteRecord) (*models.BatchResult, error)
	ImportCSV(ctx context.Context, actor service.Actor, r io.Reader) (*models.BatchResult, error)
	Accept(ctx context.Context, req service.AcceptInvitationRequest) (*models.Invitation, error)
	Resend(ctx context.Context, actor service.Actor, id string) (*models.InvitationResult, error)
	Revoke(ctx context.Context, actor service.Actor, id string) error
	List(ctx context.Context, actor service.Actor, status string) ([]models.Invitation, error)
}

// InvitationHandler exposes musician invitation endpoints.
type InvitationHandler struct {
	service invitationService
}

// NewInvitationHandler builds a new handler.
func NewInvitationHandler(service invitationService) *InvitationHandler {
	return &InvitationHandler{service: service}
}

// Create godoc
// @Summary Invite one or many musicians
// @Description type "single" returns 201 with the invitation and one-time credentials. type "bulk" returns 200 with per-record outcomes.
// @Tags Invitations
// @Accept json
// @Produce json
// @Param payload body dto.InvitationRequest true "Invitation payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /invitations [post]
func (h *InvitationHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.InvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}

	if req.Single != nil {
		result, err := h.service.Invite(c.Request.Context(), actor, *req.Single)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, result)
		return
	}
	batch, err := h.service.InviteBulk(c.Request.Context(), actor, req.Bulk)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Import godoc
// @Summary Invite musicians from a CSV file
// @Description Columns: email, first_name, last_name and optionally phone, with a header row.
// @Tags Invitations
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /invitations/import [post]
func (h *InvitationHandler) Import(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "a csv file is required in the file field"))
		return
	}
	if header.Size > maxImportBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "csv file must be at most 2 MB"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "csv file could not be read"))
		return
	}
	defer file.Close()

	batch, err := h.service.ImportCSV(c.Request.Context(), actor, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Accept godoc
// @Summary Redeem an invitation
// @Tags Invitations
// @Accept json
// @Produce json
// @Param payload body dto.AcceptInvitationRequest true "Token"
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /invitations/accept [post]
func (h *InvitationHandler) Accept(c *gin.Context) {
	var req dto.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invitation payload"))
		return
	}
	invitation, err := h.service.Accept(c.Request.Context(), service.AcceptInvitationRequest{
		Token:     req.Token,
		Expires:   req.Expires,
		Signature: req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invitation, nil)
}

// List godoc
// @Summary List invitations
// @Tags Invitations
// @Produce json
// @Param status query string false "PENDING, ACCEPTED or EXPIRED"
// @Success 200 {object} response.Envelope
// @Router /invitations [get]
func (h *InvitationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	invitations, err := h.service.List(c.Request.Context(), actor, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invitations, nil)
}

// Resend godoc
// @Summary Reissue a pending invitation
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /invitations/{id}/resend [post]
func (h *InvitationHandler) Resend(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.Resend(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Revoke godoc
// @Summary Revoke a pending invitation
// @Tags Invitations
// @Param id path string true "Invitation ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /invitations/{id} [delete]
func (h *InvitationHandler) Revoke(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Revoke(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
