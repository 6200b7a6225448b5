package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"consult-chat/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("only the sender may modify a message")
	ErrNotTextMessage  = errors.New("only text messages can be edited")
)

const messageColumns = `id, room_id, appointment_id, sender_id, kind, content, file_name, file_url, file_size, deleted, edited_at, created_at`

// NewMessage carries the fields needed to append a message.
type NewMessage struct {
	RoomID        int64
	AppointmentID int64
	SenderID      int64
	Kind          models.MessageKind
	Text          string
	File          *models.FileMeta
}

// MessageRepository defines interactions for the append-only message log.
type MessageRepository interface {
	Append(ctx context.Context, msg NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListByRoom(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	ListByAppointment(ctx context.Context, appointmentID int64, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageIDs []int64, userID int64) error
	UnreadCount(ctx context.Context, roomID, userID int64) (int, error)
	Edit(ctx context.Context, messageID, actorID int64, newText string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID, actorID int64) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores a message. The room's last-message snapshot is updated by
// the caller afterwards; it does not need to be atomic with the insert.
func (r *MessageRepo) Append(ctx context.Context, msg NewMessage) (models.Message, error) {
	var content, fileName, fileURL, fileSize any
	if msg.Kind == models.MessageKindFile {
		if msg.File == nil {
			return models.Message{}, errors.New("file message without file meta")
		}
		fileName, fileURL, fileSize = msg.File.Name, msg.File.URL, msg.File.Size
	} else {
		content = msg.Text
	}

	var stored models.Message
	err := r.db.GetContext(ctx, &stored, `INSERT INTO messages (room_id, appointment_id, sender_id, kind, content, file_name, file_url, file_size)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+messageColumns,
		msg.RoomID, msg.AppointmentID, msg.SenderID, msg.Kind, content, fileName, fileURL, fileSize)
	return stored, err
}

// GetMessage retrieves a single message by id, soft-deleted rows included.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if err := r.loadReadBy(ctx, []*models.Message{&msg}); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListByRoom returns the room's messages in chronological order, excluding
// soft-deleted ones. limit <= 0 means no limit.
func (r *MessageRepo) ListByRoom(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	return r.list(ctx, `room_id`, roomID, limit)
}

// ListByAppointment returns the appointment's messages ascending, excluding
// soft-deleted ones.
func (r *MessageRepo) ListByAppointment(ctx context.Context, appointmentID int64, limit int) ([]models.Message, error) {
	return r.list(ctx, `appointment_id`, appointmentID, limit)
}

func (r *MessageRepo) list(ctx context.Context, column string, id int64, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + column + `=$1 AND deleted=FALSE ORDER BY created_at ASC, id ASC`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Message, len(msgs))
	for i := range msgs {
		ptrs[i] = &msgs[i]
	}
	if err := r.loadReadBy(ctx, ptrs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) loadReadBy(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(msgs))
	byID := make(map[int64]*models.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT message_id, user_id FROM message_reads WHERE message_id = ANY($1) ORDER BY user_id`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID int64
		if err := rows.Scan(&messageID, &userID); err != nil {
			return err
		}
		if m, ok := byID[messageID]; ok {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	return rows.Err()
}

// MarkRead adds the user to each message's read set. The insert is a
// commutative set union: repeated and concurrent calls converge without
// coordination. Only messages in rooms the user belongs to are touched, so
// ids from foreign rooms smuggled into a batch are silently skipped.
func (r *MessageRepo) MarkRead(ctx context.Context, messageIDs []int64, userID int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT m.id, $2 FROM messages m
        JOIN rooms r ON r.id = m.room_id
        WHERE m.id = ANY($1) AND (r.patient_id = $2 OR r.doctor_id = $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, pq.Array(messageIDs), userID)
	return err
}

// UnreadCount counts visible messages from the other participant that the
// user has not read yet.
func (r *MessageRepo) UnreadCount(ctx context.Context, roomID, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        WHERE m.room_id=$1 AND m.sender_id<>$2 AND m.deleted=FALSE
        AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id=m.id AND mr.user_id=$2)`, roomID, userID)
	return count, err
}

// Edit replaces the text of a sender's own text message.
func (r *MessageRepo) Edit(ctx context.Context, messageID, actorID int64, newText string) (models.Message, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != actorID {
		return models.Message{}, ErrNotSender
	}
	if msg.Kind != models.MessageKindText {
		return models.Message{}, ErrNotTextMessage
	}

	var updated models.Message
	err = r.db.GetContext(ctx, &updated, `UPDATE messages SET content=$3, edited_at=NOW() WHERE id=$1 AND sender_id=$2
        RETURNING `+messageColumns, messageID, actorID, newText)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	updated.ReadBy = msg.ReadBy
	return updated, nil
}

// SoftDelete marks the sender's own message as deleted. The row is retained.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, actorID int64) error {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		return ErrNotSender
	}
	_, err = r.db.ExecContext(ctx, `UPDATE messages SET deleted=TRUE WHERE id=$1`, messageID)
	return err
}
