package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"consult-chat/internal/access"
	"consult-chat/internal/extension"
	"consult-chat/internal/identity"
	"consult-chat/internal/models"
	"consult-chat/internal/observability"
	"consult-chat/internal/presence"
	"consult-chat/internal/repositories"
)

const (
	historyLimit   = 200
	eventTimeout   = 10 * time.Second
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatSocketHandler upgrades connections and routes the consultation chat
// protocol. Every inbound event is handled in its own goroutine so a slow
// database call never stalls the read loop.
type ChatSocketHandler struct {
	hub        *Hub
	rooms      repositories.RoomRepository
	messages   repositories.MessageRepository
	appts      repositories.AppointmentRepository
	gate       *access.Gate
	presence   *presence.Hub
	negotiator *extension.Negotiator
	verifier   *identity.Verifier
	now        func() time.Time
}

// NewChatSocketHandler constructs a ChatSocketHandler.
func NewChatSocketHandler(hub *Hub, rooms repositories.RoomRepository, messages repositories.MessageRepository, appts repositories.AppointmentRepository, gate *access.Gate, presenceHub *presence.Hub, negotiator *extension.Negotiator, verifier *identity.Verifier) *ChatSocketHandler {
	return &ChatSocketHandler{
		hub:        hub,
		rooms:      rooms,
		messages:   messages,
		appts:      appts,
		gate:       gate,
		presence:   presenceHub,
		negotiator: negotiator,
		verifier:   verifier,
		now:        time.Now,
	}
}

// Handle authenticates, upgrades and runs the connection until it closes.
func (h *ChatSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("consult-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	claims, err := h.verifier.VerifyBearer(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: h.now(),
	}
	client := newClient(conn, info)
	h.hub.Register(client)
	h.presence.SetOnline(claims.UserID)

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	publishLifecycleEvent(ctx, info, "ws_connect", "")

	go client.writePump()
	go h.readLoop(client)
}

func (h *ChatSocketHandler) readLoop(client *Client) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var closeReason string
	defer func() {
		h.hub.Unregister(client)
		h.presence.SetOffline(client.UserID())
		client.close(closeReason)
		observability.DecWSActive("chat")
		observability.IncWSEvent("chat", "ws_disconnect")
		publishLifecycleEvent(context.Background(), client.info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("chat", "ws_error")
				publishLifecycleEvent(context.Background(), client.info, "ws_error", closeReason)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			client.sendEvent(EventError, errorData{Code: "BAD_REQUEST", Message: "malformed event"})
			continue
		}
		go h.dispatch(client, env)
	}
}

func (h *ChatSocketHandler) dispatch(client *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case EventJoinRoom:
		var p joinRoomPayload
		if decode(client, env, &p) {
			h.handleJoin(ctx, client, p.AppointmentID)
		}
	case EventSendMessage:
		var p sendMessagePayload
		if decode(client, env, &p) {
			h.handleSend(ctx, client, p.AppointmentID, models.MessageKindText, p.Text, nil)
		}
	case EventShareFile:
		var p shareFilePayload
		if decode(client, env, &p) {
			file := p.File
			h.handleSend(ctx, client, p.AppointmentID, models.MessageKindFile, "", &file)
		}
	case EventTypingStart:
		var p typingPayload
		if decode(client, env, &p) {
			h.handleTyping(ctx, client, p.AppointmentID, true)
		}
	case EventTypingStop:
		var p typingPayload
		if decode(client, env, &p) {
			h.handleTyping(ctx, client, p.AppointmentID, false)
		}
	case EventMarkRead:
		var p markReadPayload
		if decode(client, env, &p) {
			h.handleMarkRead(ctx, client, p.MessageIDs)
		}
	case EventEditMessage:
		var p editMessagePayload
		if decode(client, env, &p) {
			h.handleEdit(ctx, client, p.MessageID, p.Text)
		}
	case EventDeleteMessage:
		var p deleteMessagePayload
		if decode(client, env, &p) {
			h.handleDelete(ctx, client, p.MessageID)
		}
	case EventRequestExtension:
		var p extensionPayload
		if decode(client, env, &p) {
			h.handleRequestExtension(ctx, client, p.AppointmentID)
		}
	case EventAcceptExtension:
		var p extensionPayload
		if decode(client, env, &p) {
			h.handleAcceptExtension(ctx, client, p.AppointmentID)
		}
	default:
		client.sendEvent(EventError, errorData{Code: "BAD_REQUEST", Message: "unknown event: " + env.Event})
	}
}

func decode(client *Client, env Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		client.sendEvent(EventError, errorData{Code: "BAD_REQUEST", Message: "malformed " + env.Event + " payload"})
		return false
	}
	return true
}

// handleJoin authorizes the participant, resolves the persistent room for
// the pair, replays history and subscribes the connection. History is
// readable in any state; only sending is gated.
func (h *ChatSocketHandler) handleJoin(ctx context.Context, client *Client, appointmentID int64) {
	appt, err := h.appts.GetByID(ctx, appointmentID)
	if err != nil {
		h.sendError(client, err)
		return
	}

	decision, err := h.gate.Evaluate(appt, client.UserID(), h.now())
	if err != nil {
		client.sendEvent(EventChatAccess, chatAccessData{Allowed: false, Reason: "not a participant of this appointment"})
		return
	}

	room, err := h.rooms.FindOrCreate(ctx, appt.PatientID, appt.DoctorID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	if err := h.rooms.LinkAppointment(ctx, room.ID, appointmentID); err != nil {
		h.sendError(client, err)
		return
	}

	if decision.CanSend {
		// First writable join starts the consultation clock; set-once.
		if err := h.appts.MarkStarted(ctx, appointmentID); err != nil {
			log.Error().Err(err).Int64("appointment_id", appointmentID).Msg("mark appointment started")
		}
	}

	h.hub.Subscribe(room.ID, client)
	client.bindAppointment(appointmentID, room.ID)

	client.sendEvent(EventChatAccess, chatAccessData{
		Allowed:         true,
		CanSendMessages: decision.CanSend,
		State:           string(decision.State),
		Reason:          decision.Reason,
	})

	history, err := h.messages.ListByAppointment(ctx, appointmentID, historyLimit)
	if err != nil {
		h.sendError(client, err)
		return
	}
	views := make([]models.MessageView, 0, len(history))
	for _, m := range history {
		views = append(views, m.View())
	}
	client.sendEvent(EventChatHistory, chatHistoryData{RoomID: room.ID, Messages: views})
}

func (h *ChatSocketHandler) handleSend(ctx context.Context, client *Client, appointmentID int64, kind models.MessageKind, text string, file *models.FileMeta) {
	appt, err := h.appts.GetByID(ctx, appointmentID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	decision, err := h.gate.Evaluate(appt, client.UserID(), h.now())
	if err != nil {
		h.sendError(client, err)
		return
	}
	if !decision.CanSend {
		client.sendEvent(EventError, errorData{Code: "NOT_ACTIVE", Message: decision.Reason})
		return
	}

	// A send can be the first writable action when the client skipped
	// join_room; the consultation clock starts here too. Set-once.
	if !appt.ActualStart.Valid {
		if err := h.appts.MarkStarted(ctx, appointmentID); err != nil {
			log.Error().Err(err).Int64("appointment_id", appointmentID).Msg("mark appointment started")
		}
	}

	roomID, err := h.resolveRoom(ctx, client, appointmentID, appt)
	if err != nil {
		h.sendError(client, err)
		return
	}

	msg, err := h.messages.Append(ctx, repositories.NewMessage{
		RoomID:        roomID,
		AppointmentID: appointmentID,
		SenderID:      client.UserID(),
		Kind:          kind,
		Text:          text,
		File:          file,
	})
	if err != nil {
		h.sendError(client, err)
		return
	}

	snapshot := models.LastMessageSnapshot{Text: msg.Text(), SenderID: msg.SenderID, SentAt: msg.CreatedAt}
	if kind == models.MessageKindFile && file != nil {
		snapshot.Text = file.Name
	}
	if err := h.rooms.UpdateLastMessage(ctx, roomID, snapshot); err != nil {
		log.Error().Err(err).Int64("room_id", roomID).Msg("update last message snapshot")
	}

	observability.IncWSEvent("chat", EventNewMessage)
	h.hub.BroadcastToRoom(roomID, EventNewMessage, newMessageData{Message: msg.View()})
}

func (h *ChatSocketHandler) handleTyping(ctx context.Context, client *Client, appointmentID int64, typing bool) {
	roomID, ok := client.roomForAppointment(appointmentID)
	if !ok {
		appt, err := h.appts.GetByID(ctx, appointmentID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		if !appt.HasParticipant(client.UserID()) {
			h.sendError(client, access.ErrForbidden)
			return
		}
		roomID, err = h.resolveRoom(ctx, client, appointmentID, appt)
		if err != nil {
			h.sendError(client, err)
			return
		}
	}
	h.presence.SetTyping(client.UserID(), roomID, typing)
}

func (h *ChatSocketHandler) handleMarkRead(ctx context.Context, client *Client, messageIDs []int64) {
	if len(messageIDs) == 0 {
		return
	}

	// Receipts go to the room of the first message; a batch always belongs
	// to one room in practice. Membership in that room gates the whole batch.
	msg, err := h.messages.GetMessage(ctx, messageIDs[0])
	if err != nil {
		h.sendError(client, err)
		return
	}
	member, err := h.rooms.IsParticipant(ctx, msg.RoomID, client.UserID())
	if err != nil {
		h.sendError(client, err)
		return
	}
	if !member {
		h.sendError(client, access.ErrForbidden)
		return
	}

	if err := h.messages.MarkRead(ctx, messageIDs, client.UserID()); err != nil {
		h.sendError(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.RoomID, EventMessagesMarkedRead, messagesMarkedReadData{MessageIDs: messageIDs, UserID: client.UserID()})
}

func (h *ChatSocketHandler) handleEdit(ctx context.Context, client *Client, messageID int64, text string) {
	msg, err := h.messages.Edit(ctx, messageID, client.UserID(), text)
	if err != nil {
		h.sendError(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.RoomID, EventMessageEdited, newMessageData{Message: msg.View()})
}

func (h *ChatSocketHandler) handleDelete(ctx context.Context, client *Client, messageID int64) {
	msg, err := h.messages.GetMessage(ctx, messageID)
	if err != nil {
		h.sendError(client, err)
		return
	}
	if err := h.messages.SoftDelete(ctx, messageID, client.UserID()); err != nil {
		h.sendError(client, err)
		return
	}
	h.hub.BroadcastToRoom(msg.RoomID, EventMessageDeleted, messageDeletedData{MessageID: messageID, RoomID: msg.RoomID})
}

func (h *ChatSocketHandler) handleRequestExtension(ctx context.Context, client *Client, appointmentID int64) {
	result, err := h.negotiator.Request(ctx, appointmentID, client.UserID())
	if err != nil {
		h.sendExtensionError(client, "request", appointmentID, err)
		return
	}

	observability.IncWSEvent("chat", EventExtensionRequested)
	observability.IncExtensionOutcome("request", "ok")
	h.hub.SendToUser(result.RecipientID, EventExtensionRequested, extensionRequestedData{
		AppointmentID: appointmentID,
		RequestedBy:   result.RequesterID,
	})
	client.sendEvent(EventSystemMessage, systemMessageData{Type: "extension_requested", Message: "extension request sent"})
}

func (h *ChatSocketHandler) handleAcceptExtension(ctx context.Context, client *Client, appointmentID int64) {
	result, err := h.negotiator.Accept(ctx, appointmentID, client.UserID())
	if err != nil {
		h.sendExtensionError(client, "accept", appointmentID, err)
		return
	}

	roomID, resolveErr := h.resolveRoomByPair(ctx, client, appointmentID, result.PatientID, result.DoctorID)
	if resolveErr != nil {
		log.Error().Err(resolveErr).Int64("appointment_id", appointmentID).Msg("resolve room after extension")
	}

	observability.IncWSEvent("chat", EventExtensionConfirmed)
	observability.IncExtensionOutcome("accept", "ok")
	confirmed := extensionConfirmedData{
		AppointmentID: appointmentID,
		AcceptedBy:    result.AcceptedBy,
		NewEndTime:    result.NewEndTime,
	}
	if roomID != 0 {
		h.hub.BroadcastToRoom(roomID, EventExtensionConfirmed, confirmed)

		sys, err := h.messages.Append(ctx, repositories.NewMessage{
			RoomID:        roomID,
			AppointmentID: appointmentID,
			SenderID:      result.AcceptedBy,
			Kind:          models.MessageKindSystem,
			Text:          "consultation extended until " + result.NewEndTime.UTC().Format(time.RFC3339),
		})
		if err != nil {
			log.Error().Err(err).Int64("appointment_id", appointmentID).Msg("persist extension system message")
		} else {
			h.hub.BroadcastToRoom(roomID, EventNewMessage, newMessageData{Message: sys.View()})
		}
	}

	// Both parties get the confirmation even if one is not subscribed to
	// the room on this node.
	h.hub.SendToUser(result.PatientID, EventExtensionConfirmed, confirmed)
	h.hub.SendToUser(result.DoctorID, EventExtensionConfirmed, confirmed)
}

func (h *ChatSocketHandler) resolveRoom(ctx context.Context, client *Client, appointmentID int64, appt models.Appointment) (int64, error) {
	return h.resolveRoomByPair(ctx, client, appointmentID, appt.PatientID, appt.DoctorID)
}

func (h *ChatSocketHandler) resolveRoomByPair(ctx context.Context, client *Client, appointmentID, patientID, doctorID int64) (int64, error) {
	if roomID, ok := client.roomForAppointment(appointmentID); ok {
		return roomID, nil
	}
	room, err := h.rooms.FindOrCreate(ctx, patientID, doctorID)
	if err != nil {
		return 0, err
	}
	h.hub.Subscribe(room.ID, client)
	client.bindAppointment(appointmentID, room.ID)
	return room.ID, nil
}

func (h *ChatSocketHandler) sendError(client *Client, err error) {
	code := errorCode(err)
	if code == "INTERNAL" {
		log.Error().Err(err).Int64("user_id", client.UserID()).Msg("websocket event failed")
	}
	client.sendEvent(EventError, errorData{Code: code, Message: errorMessage(err)})
}

func (h *ChatSocketHandler) sendExtensionError(client *Client, operation string, appointmentID int64, err error) {
	code := errorCode(err)
	if code == "INTERNAL" {
		log.Error().Err(err).Int64("appointment_id", appointmentID).Msg("extension event failed")
	}
	observability.IncWSEvent("chat", EventExtensionError)
	observability.IncExtensionOutcome(operation, code)
	client.sendEvent(EventExtensionError, extensionErrorData{AppointmentID: appointmentID, Code: code, Message: errorMessage(err)})
}

func publishLifecycleEvent(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "chat",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.chats", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}
