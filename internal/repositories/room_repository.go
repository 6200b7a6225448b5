package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"consult-chat/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

const roomColumns = `id, patient_id, doctor_id, last_message, last_sender_id, last_message_at, created_at, updated_at`

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	FindOrCreate(ctx context.Context, patientID, doctorID int64) (models.Room, error)
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	IsParticipant(ctx context.Context, roomID, userID int64) (bool, error)
	LinkAppointment(ctx context.Context, roomID, appointmentID int64) error
	UpdateLastMessage(ctx context.Context, roomID int64, snapshot models.LastMessageSnapshot) error
	ListForUser(ctx context.Context, userID int64) ([]models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// FindOrCreate returns the single room for a patient/doctor pair, creating
// it on first access. The UNIQUE(patient_id, doctor_id) constraint makes
// concurrent creators converge on one row: the loser's insert is a no-op
// and the re-read picks up the winner's room.
func (r *RoomRepo) FindOrCreate(ctx context.Context, patientID, doctorID int64) (models.Room, error) {
	if patientID == doctorID {
		return models.Room{}, errors.New("patient and doctor must differ")
	}

	var room models.Room
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE patient_id=$1 AND doctor_id=$2`
	err := r.db.GetContext(ctx, &room, query, patientID, doctorID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, err
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO rooms (patient_id, doctor_id) VALUES ($1, $2)
        ON CONFLICT (patient_id, doctor_id) DO NOTHING`, patientID, doctorID); err != nil {
		return models.Room{}, err
	}
	err = r.db.GetContext(ctx, &room, query, patientID, doctorID)
	return room, err
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// IsParticipant checks whether a user belongs to the room.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id=$1 AND (patient_id=$2 OR doctor_id=$2))`, roomID, userID)
	return exists, err
}

// LinkAppointment records that the appointment's chat lives in the room.
// Idempotent add-to-set.
func (r *RoomRepo) LinkAppointment(ctx context.Context, roomID, appointmentID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_appointments (room_id, appointment_id) VALUES ($1, $2)
        ON CONFLICT (room_id, appointment_id) DO NOTHING`, roomID, appointmentID)
	return err
}

// UpdateLastMessage refreshes the denormalized preview on the room.
func (r *RoomRepo) UpdateLastMessage(ctx context.Context, roomID int64, snapshot models.LastMessageSnapshot) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET last_message=$2, last_sender_id=$3, last_message_at=$4, updated_at=NOW() WHERE id=$1`,
		roomID, snapshot.Text, snapshot.SenderID, snapshot.SentAt)
	return err
}

// ListForUser returns the user's rooms, most recently active first.
func (r *RoomRepo) ListForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
        WHERE patient_id=$1 OR doctor_id=$1
        ORDER BY COALESCE(last_message_at, created_at) DESC`
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, query, userID)
	return rooms, err
}
