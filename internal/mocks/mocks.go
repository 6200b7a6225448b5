package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) FindOrCreate(ctx context.Context, patientID, doctorID int64) (models.Room, error) {
	args := m.Called(ctx, patientID, doctorID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) LinkAppointment(ctx context.Context, roomID, appointmentID int64) error {
	args := m.Called(ctx, roomID, appointmentID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) UpdateLastMessage(ctx context.Context, roomID int64, snapshot models.LastMessageSnapshot) error {
	args := m.Called(ctx, roomID, snapshot)
	return args.Error(0)
}

func (m *RoomRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg repositories.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var message models.Message
	if val := args.Get(0); val != nil {
		message = val.(models.Message)
	}
	return message, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var message models.Message
	if val := args.Get(0); val != nil {
		message = val.(models.Message)
	}
	return message, args.Error(1)
}

func (m *MessageRepositoryMock) ListByRoom(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListByAppointment(ctx context.Context, appointmentID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, appointmentID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageIDs []int64, userID int64) error {
	args := m.Called(ctx, messageIDs, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, roomID, userID int64) (int, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID, actorID int64, newText string) (models.Message, error) {
	args := m.Called(ctx, messageID, actorID, newText)
	var message models.Message
	if val := args.Get(0); val != nil {
		message = val.(models.Message)
	}
	return message, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID, actorID int64) error {
	args := m.Called(ctx, messageID, actorID)
	return args.Error(0)
}

type AppointmentRepositoryMock struct {
	mock.Mock
}

func (m *AppointmentRepositoryMock) GetByID(ctx context.Context, appointmentID int64) (models.Appointment, error) {
	args := m.Called(ctx, appointmentID)
	var appt models.Appointment
	if val := args.Get(0); val != nil {
		appt = val.(models.Appointment)
	}
	return appt, args.Error(1)
}

func (m *AppointmentRepositoryMock) MarkStarted(ctx context.Context, appointmentID int64) error {
	args := m.Called(ctx, appointmentID)
	return args.Error(0)
}

func (m *AppointmentRepositoryMock) MarkExtensionRequested(ctx context.Context, appointmentID, requesterID int64) (bool, error) {
	args := m.Called(ctx, appointmentID, requesterID)
	return args.Bool(0), args.Error(1)
}

type WalletRepositoryMock struct {
	mock.Mock
}

func (m *WalletRepositoryMock) GetByUser(ctx context.Context, userID int64) (models.Wallet, error) {
	args := m.Called(ctx, userID)
	var wallet models.Wallet
	if val := args.Get(0); val != nil {
		wallet = val.(models.Wallet)
	}
	return wallet, args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) BulkProfiles(ctx context.Context, ids []int64) (map[int64]models.Profile, error) {
	args := m.Called(ctx, ids)
	var profiles map[int64]models.Profile
	if val := args.Get(0); val != nil {
		profiles = val.(map[int64]models.Profile)
	}
	return profiles, args.Error(1)
}

type ConnectionRegistryMock struct {
	mock.Mock
}

func (m *ConnectionRegistryMock) IsConnected(userID int64) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.AppointmentRepository = (*AppointmentRepositoryMock)(nil)
var _ repositories.WalletRepository = (*WalletRepositoryMock)(nil)
var _ repositories.ProfileRepository = (*ProfileRepositoryMock)(nil)
