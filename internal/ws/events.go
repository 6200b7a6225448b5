package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"consult-chat/internal/access"
	"consult-chat/internal/extension"
	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

// Inbound event names.
const (
	EventJoinRoom         = "join_room"
	EventSendMessage      = "send_message"
	EventShareFile        = "share_file"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventMarkRead         = "mark_read"
	EventEditMessage      = "edit_message"
	EventDeleteMessage    = "delete_message"
	EventRequestExtension = "request_extension"
	EventAcceptExtension  = "accept_extension"
)

// Outbound event names.
const (
	EventChatAccess         = "chat_access"
	EventChatHistory        = "chat_history"
	EventNewMessage         = "new_message"
	EventMessageEdited      = "message_edited"
	EventMessageDeleted     = "message_deleted"
	EventMessagesMarkedRead = "messages_marked_read"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventExtensionRequested = "extension_requested"
	EventExtensionConfirmed = "extension_confirmed"
	EventExtensionError     = "extension_error"
	EventSystemMessage      = "system_message"
	EventError              = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func marshalEvent(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event payload")
		return nil
	}
	payload, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal event envelope")
		return nil
	}
	return payload
}

type joinRoomPayload struct {
	AppointmentID int64 `json:"appointment_id"`
}

type sendMessagePayload struct {
	AppointmentID int64  `json:"appointment_id"`
	Text          string `json:"text"`
}

type shareFilePayload struct {
	AppointmentID int64           `json:"appointment_id"`
	File          models.FileMeta `json:"file"`
}

type typingPayload struct {
	AppointmentID int64 `json:"appointment_id"`
}

type markReadPayload struct {
	MessageIDs []int64 `json:"message_ids"`
}

type editMessagePayload struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type deleteMessagePayload struct {
	MessageID int64 `json:"message_id"`
}

type extensionPayload struct {
	AppointmentID int64 `json:"appointment_id"`
}

type chatAccessData struct {
	Allowed         bool   `json:"allowed"`
	CanSendMessages bool   `json:"can_send_messages"`
	State           string `json:"state,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type chatHistoryData struct {
	RoomID   int64                `json:"room_id"`
	Messages []models.MessageView `json:"messages"`
}

type newMessageData struct {
	Message models.MessageView `json:"message"`
}

type messagesMarkedReadData struct {
	MessageIDs []int64 `json:"message_ids"`
	UserID     int64   `json:"user_id"`
}

type messageDeletedData struct {
	MessageID int64 `json:"message_id"`
	RoomID    int64 `json:"room_id"`
}

type typingData struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

type presenceData struct {
	UserID int64 `json:"user_id"`
}

type extensionRequestedData struct {
	AppointmentID int64 `json:"appointment_id"`
	RequestedBy   int64 `json:"requested_by"`
}

type extensionConfirmedData struct {
	AppointmentID int64     `json:"appointment_id"`
	AcceptedBy    int64     `json:"accepted_by"`
	NewEndTime    time.Time `json:"new_end_time"`
}

type extensionErrorData struct {
	AppointmentID int64  `json:"appointment_id"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

type systemMessageData struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps domain errors to the wire taxonomy. Unknown errors become
// INTERNAL and are logged server-side, never surfaced verbatim.
func errorCode(err error) string {
	switch {
	case errors.Is(err, extension.ErrNotParticipant), errors.Is(err, access.ErrForbidden):
		return "UNAUTHORIZED"
	case errors.Is(err, repositories.ErrNotSender):
		return "FORBIDDEN"
	case errors.Is(err, repositories.ErrNotTextMessage):
		return "INVALID_STATE"
	case errors.Is(err, extension.ErrNotActive):
		return "NOT_ACTIVE"
	case errors.Is(err, extension.ErrAlreadyRequested):
		return "ALREADY_REQUESTED"
	case errors.Is(err, extension.ErrAlreadyGranted):
		return "ALREADY_GRANTED"
	case errors.Is(err, extension.ErrNoPendingRequest):
		return "NO_PENDING_REQUEST"
	case errors.Is(err, extension.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, extension.ErrRecipientUnavailable):
		return "RECIPIENT_UNAVAILABLE"
	case errors.Is(err, extension.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, repositories.ErrRoomNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrAppointmentNotFound),
		errors.Is(err, repositories.ErrWalletNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// errorMessage gives the client a safe description for the code.
func errorMessage(err error) string {
	if errorCode(err) == "INTERNAL" {
		return "internal error"
	}
	return err.Error()
}
