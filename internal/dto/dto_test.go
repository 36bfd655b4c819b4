package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitationRequestDecodesVariants(t *testing.T) {
	var single InvitationRequest
	require.NoError(t, json.Unmarshal([]byte(`{"type":"single","data":{"email":"a@example.org","first_name":"A","last_name":"B"}}`), &single))
	require.NotNil(t, single.Single)
	assert.Equal(t, "a@example.org", single.Single.Email)
	assert.Nil(t, single.Bulk)

	var bulk InvitationRequest
	require.NoError(t, json.Unmarshal([]byte(`{"type":"bulk","data":[{"email":"a@example.org"},{"email":"b@example.org"}]}`), &bulk))
	assert.Nil(t, bulk.Single)
	assert.Len(t, bulk.Bulk, 2)
}

func TestInvitationRequestRejectsMalformed(t *testing.T) {
	var req InvitationRequest
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"type":"group","data":{}}`), &req), ErrUnknownInvitationType)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"type":"single"}`), &req), ErrMissingInvitationData)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"type":"bulk","data":null}`), &req), ErrMissingInvitationData)
	assert.Error(t, json.Unmarshal([]byte(`{"type":"bulk","data":{"email":"a@example.org"}}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"single","data":[]}`), &req))
}

func TestAssignmentUpdateRequestVariants(t *testing.T) {
	cases := []struct {
		body     string
		kind     AssignmentUpdateKind
		musician string
	}{
		{`{"musician_id":"m1"}`, AssignmentAssign, "m1"},
		{`{"musician_id":null}`, AssignmentRemove, ""},
		{`{"action":"accept"}`, AssignmentAccept, ""},
		{`{"action":"DECLINE"}`, AssignmentDecline, ""},
	}
	for _, tc := range cases {
		var req AssignmentUpdateRequest
		require.NoError(t, json.Unmarshal([]byte(tc.body), &req), tc.body)
		assert.Equal(t, tc.kind, req.Kind, tc.body)
		assert.Equal(t, tc.musician, req.MusicianID, tc.body)
	}
}

func TestAssignmentUpdateRequestRejects(t *testing.T) {
	var req AssignmentUpdateRequest
	assert.ErrorIs(t, json.Unmarshal([]byte(`{}`), &req), ErrEmptyAssignmentUpdate)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"musician_id":"m1","action":"accept"}`), &req), ErrAmbiguousAssignmentUpdate)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"action":"maybe"}`), &req), ErrUnknownAssignmentAction)
	assert.Error(t, json.Unmarshal([]byte(`{"musician_id":""}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"musician_id":42}`), &req))
}
