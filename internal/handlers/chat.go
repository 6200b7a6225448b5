package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

// ChatHandler serves the non-realtime query surface.
type ChatHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	appts    repositories.AppointmentRepository
	profiles repositories.ProfileRepository
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, appts repositories.AppointmentRepository, profiles repositories.ProfileRepository) *ChatHandler {
	return &ChatHandler{
		rooms:    rooms,
		messages: messages,
		appts:    appts,
		profiles: profiles,
	}
}

// ListRooms returns the user's rooms enriched with peer profile and unread
// count, most recently active first.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt64("userID")

	rooms, err := h.rooms.ListForUser(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	peerIDs := make([]int64, 0, len(rooms))
	for _, room := range rooms {
		peerIDs = append(peerIDs, room.PeerOf(userID))
	}
	profiles, err := h.profiles.BulkProfiles(c.Request.Context(), peerIDs)
	if err != nil {
		log.Error().Err(err).Msg("load peer profiles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		peerID := room.PeerOf(userID)
		unread, err := h.messages.UnreadCount(c.Request.Context(), room.ID, userID)
		if err != nil {
			log.Error().Err(err).Int64("room_id", room.ID).Msg("unread count")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
			return
		}

		summary := models.RoomSummary{
			RoomID:      room.ID,
			PeerID:      peerID,
			UnreadCount: unread,
			CreatedAt:   room.CreatedAt,
		}
		if profile, ok := profiles[peerID]; ok {
			summary.PeerName = profile.DisplayName
			summary.PeerAvatarURL = profile.AvatarURL.String
		}
		if room.LastMessage.Valid {
			summary.LastMessage = room.LastMessage.String
		}
		if room.LastMessageAt.Valid {
			t := room.LastMessageAt.Time
			summary.LastMessageAt = &t
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetAppointmentMessages returns an appointment's messages for a participant.
func (h *ChatHandler) GetAppointmentMessages(c *gin.Context) {
	appointmentID, err := strconv.ParseInt(c.Param("appointment_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid appointment id"})
		return
	}
	userID := c.GetInt64("userID")

	appt, err := h.appts.GetByID(c.Request.Context(), appointmentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrAppointmentNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "appointment not found"})
		return
	}
	if !appt.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.messages.ListByAppointment(c.Request.Context(), appointmentID, 0)
	if err != nil {
		log.Error().Err(err).Int64("appointment_id", appointmentID).Msg("list appointment messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": toViews(msgs)})
}

// GetRoomMessages returns a room's messages for a participant, oldest first.
func (h *ChatHandler) GetRoomMessages(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	userID := c.GetInt64("userID")

	member, err := h.rooms.IsParticipant(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	msgs, err := h.messages.ListByRoom(c.Request.Context(), roomID, limit)
	if err != nil {
		log.Error().Err(err).Int64("room_id", roomID).Msg("list room messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": toViews(msgs)})
}

func toViews(msgs []models.Message) []models.MessageView {
	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, m.View())
	}
	return views
}
