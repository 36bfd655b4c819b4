package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// AssignmentUpdateKind names the change requested on a slot.
type AssignmentUpdateKind string

const (
	AssignmentAssign  AssignmentUpdateKind = "assign"
	AssignmentRemove  AssignmentUpdateKind = "remove"
	AssignmentAccept  AssignmentUpdateKind = "accept"
	AssignmentDecline AssignmentUpdateKind = "decline"
)

var (
	ErrAmbiguousAssignmentUpdate = errors.New("send either musician_id or action, not both")
	ErrEmptyAssignmentUpdate     = errors.New("musician_id or action is required")
	ErrUnknownAssignmentAction   = errors.New(`action must be "accept" or "decline"`)
)

// AssignmentUpdateRequest is the body of PUT /assignments/:id. It accepts
// {"musician_id":"..."} to assign, {"musician_id":null} to remove, or
// {"action":"accept"|"decline"} to respond.
type AssignmentUpdateRequest struct {
	Kind       AssignmentUpdateKind `json:"-"`
	MusicianID string               `json:"musician_id,omitempty"`
	Action     string               `json:"action,omitempty" enums:"accept,decline"`
}

// UnmarshalJSON resolves which variant the body carries.
func (r *AssignmentUpdateRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rawMusician, hasMusician := fields["musician_id"]
	rawAction, hasAction := fields["action"]

	*r = AssignmentUpdateRequest{}
	switch {
	case hasMusician && hasAction:
		return ErrAmbiguousAssignmentUpdate
	case hasMusician:
		if bytes.Equal(bytes.TrimSpace(rawMusician), []byte("null")) {
			r.Kind = AssignmentRemove
			return nil
		}
		if err := json.Unmarshal(rawMusician, &r.MusicianID); err != nil {
			return errors.New("musician_id must be a string or null")
		}
		if strings.TrimSpace(r.MusicianID) == "" {
			return errors.New("musician_id must not be empty")
		}
		r.Kind = AssignmentAssign
	case hasAction:
		if err := json.Unmarshal(rawAction, &r.Action); err != nil {
			return ErrUnknownAssignmentAction
		}
		switch AssignmentUpdateKind(strings.ToLower(r.Action)) {
		case AssignmentAccept:
			r.Kind = AssignmentAccept
		case AssignmentDecline:
			r.Kind = AssignmentDecline
		default:
			return ErrUnknownAssignmentAction
		}
	default:
		return ErrEmptyAssignmentUpdate
	}
	return nil
}

// AssignGroupRequest is the body of POST /events/:id/groups.
type AssignGroupRequest struct {
	GroupID string `json:"group_id" binding:"required"`
}
