package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/church-music-api/internal/models"
)

// InvitationRequestType selects the shape of an invitation request's data.
type InvitationRequestType string

const (
	InvitationSingle InvitationRequestType = "single"
	InvitationBulk   InvitationRequestType = "bulk"
)

var (
	ErrUnknownInvitationType = errors.New(`type must be "single" or "bulk"`)
	ErrMissingInvitationData = errors.New("data is required")
)

// InvitationRequest is the body of POST /invitations:
// {"type":"single","data":{...}} or {"type":"bulk","data":[{...},...]}.
// Exactly one of Single and Bulk is set after decoding.
type InvitationRequest struct {
	Type   InvitationRequestType `json:"type" swaggertype:"string" enums:"single,bulk"`
	Single *models.InviteRecord  `json:"-"`
	Bulk   []models.InviteRecord `json:"-"`
}

// UnmarshalJSON decodes the data payload according to type.
func (r *InvitationRequest) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type InvitationRequestType `json:"type"`
		Data json.RawMessage       `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	payload := bytes.TrimSpace(envelope.Data)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return ErrMissingInvitationData
	}

	*r = InvitationRequest{Type: envelope.Type}
	switch envelope.Type {
	case InvitationSingle:
		var record models.InviteRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("single invitation data must be an object: %w", err)
		}
		r.Single = &record
	case InvitationBulk:
		var records []models.InviteRecord
		if err := json.Unmarshal(payload, &records); err != nil {
			return fmt.Errorf("bulk invitation data must be an array: %w", err)
		}
		r.Bulk = records
	default:
		return ErrUnknownInvitationType
	}
	return nil
}

// AcceptInvitationRequest redeems an invitation token.
type AcceptInvitationRequest struct {
	Token     string `json:"token"`
	Expires   string `json:"exp,omitempty"`
	Signature string `json:"sig,omitempty"`
}
