package ws

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consult-chat/internal/access"
	"consult-chat/internal/extension"
	"consult-chat/internal/repositories"
)

func TestErrorCodeTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{access.ErrForbidden, "UNAUTHORIZED"},
		{extension.ErrNotParticipant, "UNAUTHORIZED"},
		{repositories.ErrNotSender, "FORBIDDEN"},
		{repositories.ErrNotTextMessage, "INVALID_STATE"},
		{extension.ErrNotActive, "NOT_ACTIVE"},
		{extension.ErrAlreadyRequested, "ALREADY_REQUESTED"},
		{extension.ErrAlreadyGranted, "ALREADY_GRANTED"},
		{extension.ErrNoPendingRequest, "NO_PENDING_REQUEST"},
		{extension.ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
		{extension.ErrRecipientUnavailable, "RECIPIENT_UNAVAILABLE"},
		{extension.ErrConflict, "CONFLICT"},
		{repositories.ErrRoomNotFound, "NOT_FOUND"},
		{repositories.ErrMessageNotFound, "NOT_FOUND"},
		{repositories.ErrAppointmentNotFound, "NOT_FOUND"},
		{repositories.ErrWalletNotFound, "NOT_FOUND"},
		{assert.AnError, "INTERNAL"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, errorCode(tc.err), "error: %v", tc.err)
	}
}

func TestErrorCodeWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("retries exhausted: %w", extension.ErrConflict)
	assert.Equal(t, "CONFLICT", errorCode(wrapped))
}

func TestErrorMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", errorMessage(assert.AnError))
	assert.Equal(t, extension.ErrNotActive.Error(), errorMessage(extension.ErrNotActive))
}

func TestMarshalEventEnvelope(t *testing.T) {
	payload := marshalEvent(EventError, errorData{Code: "NOT_ACTIVE", Message: "closed"})
	require.NotNil(t, payload)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, EventError, env.Event)

	var data errorData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "NOT_ACTIVE", data.Code)
}
