package extension

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consult-chat/internal/mocks"
	"consult-chat/internal/models"
)

func inProgressAppointment() models.Appointment {
	now := time.Now()
	return models.Appointment{
		ID:             5,
		PatientID:      10,
		DoctorID:       20,
		Status:         models.StatusInProgress,
		ScheduledStart: now.Add(-30 * time.Minute),
		ScheduledEnd:   now.Add(30 * time.Minute),
	}
}

func TestRequestSuccess(t *testing.T) {
	appts := new(mocks.AppointmentRepositoryMock)
	registry := new(mocks.ConnectionRegistryMock)
	n := NewNegotiator(nil, appts, registry, nil, 3000, 0)

	appts.On("GetByID", mock.Anything, int64(5)).Return(inProgressAppointment(), nil).Once()
	registry.On("IsConnected", int64(20)).Return(true).Once()
	appts.On("MarkExtensionRequested", mock.Anything, int64(5), int64(10)).Return(true, nil).Once()

	result, err := n.Request(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.RequesterID)
	assert.Equal(t, int64(20), result.RecipientID)

	appts.AssertExpectations(t)
	registry.AssertExpectations(t)
}

func TestRequestNonParticipant(t *testing.T) {
	appts := new(mocks.AppointmentRepositoryMock)
	n := NewNegotiator(nil, appts, new(mocks.ConnectionRegistryMock), nil, 3000, 0)

	appts.On("GetByID", mock.Anything, int64(5)).Return(inProgressAppointment(), nil).Once()

	_, err := n.Request(context.Background(), 5, 999)
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestRequestNotInProgress(t *testing.T) {
	appts := new(mocks.AppointmentRepositoryMock)
	n := NewNegotiator(nil, appts, new(mocks.ConnectionRegistryMock), nil, 3000, 0)

	appt := inProgressAppointment()
	appt.Status = models.StatusConfirmed
	appts.On("GetByID", mock.Anything, int64(5)).Return(appt, nil).Once()

	_, err := n.Request(context.Background(), 5, 10)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestRequestAlreadyPending(t *testing.T) {
	appts := new(mocks.AppointmentRepositoryMock)
	n := NewNegotiator(nil, appts, new(mocks.ConnectionRegistryMock), nil, 3000, 0)

	appt := inProgressAppointment()
	appt.ExtensionRequested = true
	appts.On("GetByID", mock.Anything, int64(5)).Return(appt, nil).Once()

	_, err := n.Request(context.Background(), 5, 10)
	require.ErrorIs(t, err, ErrAlreadyRequested)
}

func TestRequestRecipientOffline(t *testing.T) {
	appts := new(mocks.AppointmentRepositoryMock)
	registry := new(mocks.ConnectionRegistryMock)
	n := NewNegotiator(nil, appts, registry, nil, 3000, 0)

	appts.On("GetByID", mock.Anything, int64(5)).Return(inProgressAppointment(), nil).Once()
	registry.On("IsConnected", int64(20)).Return(false).Once()

	_, err := n.Request(context.Background(), 5, 10)
	require.ErrorIs(t, err, ErrRecipientUnavailable)
	appts.AssertNotCalled(t, "MarkExtensionRequested", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestLosesFlagRace(t *testing.T) {
	// Two requests race past the read; the conditional update lets only one
	// through.
	appts := new(mocks.AppointmentRepositoryMock)
	registry := new(mocks.ConnectionRegistryMock)
	n := NewNegotiator(nil, appts, registry, nil, 3000, 0)

	appts.On("GetByID", mock.Anything, int64(5)).Return(inProgressAppointment(), nil).Once()
	registry.On("IsConnected", int64(10)).Return(true).Once()
	appts.On("MarkExtensionRequested", mock.Anything, int64(5), int64(20)).Return(false, nil).Once()

	_, err := n.Request(context.Background(), 5, 20)
	require.ErrorIs(t, err, ErrAlreadyRequested)
}

func TestNegotiatorDefaults(t *testing.T) {
	n := NewNegotiator(nil, nil, nil, nil, 3000, 0)
	assert.Equal(t, DefaultIncrement, n.increment)
	assert.Equal(t, int64(3000), n.Cost())
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, isSerializationFailure(&pq.Error{Code: "40001"}))
	assert.True(t, isSerializationFailure(&pq.Error{Code: "40P01"}))
	assert.False(t, isSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, isSerializationFailure(assert.AnError))
}
