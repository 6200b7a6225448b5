package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consult-chat/internal/mocks"
	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.GET("/chats", handler.ListRooms)
	r.GET("/appointments/:appointment_id/messages", handler.GetAppointmentMessages)
	r.GET("/rooms/:room_id/messages", handler.GetRoomMessages)
	return r
}

func TestListRoomsSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	handler := NewChatHandler(roomRepo, messageRepo, nil, profileRepo)
	router := setupChatRouter(handler)

	lastAt := time.Now().Add(-time.Minute)
	roomRepo.On("ListForUser", mock.Anything, int64(1)).Return([]models.Room{{
		ID:            3,
		PatientID:     1,
		DoctorID:      2,
		LastMessage:   sql.NullString{String: "see you soon", Valid: true},
		LastMessageAt: sql.NullTime{Time: lastAt, Valid: true},
	}}, nil).Once()
	profileRepo.On("BulkProfiles", mock.Anything, []int64{2}).Return(map[int64]models.Profile{
		2: {ID: 2, DisplayName: "Dr. Smith", Role: "doctor"},
	}, nil).Once()
	messageRepo.On("UnreadCount", mock.Anything, int64(3), int64(1)).Return(4, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.RoomSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, int64(2), resp.Chats[0].PeerID)
	assert.Equal(t, "Dr. Smith", resp.Chats[0].PeerName)
	assert.Equal(t, "see you soon", resp.Chats[0].LastMessage)
	assert.Equal(t, 4, resp.Chats[0].UnreadCount)

	roomRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	profileRepo.AssertExpectations(t)
}

func TestListRoomsRepoError(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewChatHandler(roomRepo, new(mocks.MessageRepositoryMock), nil, new(mocks.ProfileRepositoryMock))
	router := setupChatRouter(handler)

	roomRepo.On("ListForUser", mock.Anything, int64(1)).Return(([]models.Room)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestGetAppointmentMessagesSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	apptRepo := new(mocks.AppointmentRepositoryMock)
	handler := NewChatHandler(new(mocks.RoomRepositoryMock), messageRepo, apptRepo, nil)
	router := setupChatRouter(handler)

	apptRepo.On("GetByID", mock.Anything, int64(9)).Return(models.Appointment{ID: 9, PatientID: 1, DoctorID: 2}, nil).Once()
	messageRepo.On("ListByAppointment", mock.Anything, int64(9), 0).Return([]models.Message{{
		ID: 5, RoomID: 3, AppointmentID: 9, SenderID: 2, Kind: models.MessageKindText,
		Content: sql.NullString{String: "hello", Valid: true},
	}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/appointments/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Text)

	apptRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestGetAppointmentMessagesNonParticipant(t *testing.T) {
	apptRepo := new(mocks.AppointmentRepositoryMock)
	handler := NewChatHandler(new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), apptRepo, nil)
	router := setupChatRouter(handler)

	apptRepo.On("GetByID", mock.Anything, int64(9)).Return(models.Appointment{ID: 9, PatientID: 5, DoctorID: 6}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/appointments/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetAppointmentMessagesNotFound(t *testing.T) {
	apptRepo := new(mocks.AppointmentRepositoryMock)
	handler := NewChatHandler(new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), apptRepo, nil)
	router := setupChatRouter(handler)

	apptRepo.On("GetByID", mock.Anything, int64(9)).Return(models.Appointment{}, repositories.ErrAppointmentNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/appointments/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAppointmentMessagesInvalidID(t *testing.T) {
	handler := NewChatHandler(new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.AppointmentRepositoryMock), nil)
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/appointments/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoomMessagesSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(roomRepo, messageRepo, nil, nil)
	router := setupChatRouter(handler)

	roomRepo.On("IsParticipant", mock.Anything, int64(3), int64(1)).Return(true, nil).Once()
	messageRepo.On("ListByRoom", mock.Anything, int64(3), 50).Return([]models.Message{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/3/messages?limit=50", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	roomRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestGetRoomMessagesNotMember(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewChatHandler(roomRepo, new(mocks.MessageRepositoryMock), nil, nil)
	router := setupChatRouter(handler)

	roomRepo.On("IsParticipant", mock.Anything, int64(3), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/3/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetRoomMessagesInvalidLimit(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewChatHandler(roomRepo, new(mocks.MessageRepositoryMock), nil, nil)
	router := setupChatRouter(handler)

	roomRepo.On("IsParticipant", mock.Anything, int64(3), int64(1)).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/3/messages?limit=-5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
