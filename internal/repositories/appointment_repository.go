package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"consult-chat/internal/models"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

const appointmentColumns = `id, patient_id, doctor_id, status, scheduled_start, scheduled_end, actual_start, extension_requested, extension_requested_by, extension_granted, extension_accepted_by`

// AppointmentRepository reads scheduling state and performs the two writes
// the chat core owns: the set-once actual start and the extension request
// flags. The grant itself happens inside the extension transaction.
type AppointmentRepository interface {
	GetByID(ctx context.Context, appointmentID int64) (models.Appointment, error)
	MarkStarted(ctx context.Context, appointmentID int64) error
	MarkExtensionRequested(ctx context.Context, appointmentID, requesterID int64) (bool, error)
}

// AppointmentRepo is a sqlx implementation of AppointmentRepository.
type AppointmentRepo struct {
	db *sqlx.DB
}

// NewAppointmentRepo constructs an AppointmentRepo.
func NewAppointmentRepo(db *sqlx.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

// GetByID fetches an appointment.
func (r *AppointmentRepo) GetByID(ctx context.Context, appointmentID int64) (models.Appointment, error) {
	var appt models.Appointment
	err := r.db.GetContext(ctx, &appt, `SELECT `+appointmentColumns+` FROM appointments WHERE id=$1`, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Appointment{}, ErrAppointmentNotFound
	}
	return appt, err
}

// MarkStarted records the wall-clock moment the consultation first became
// writable. Set-once: repeat joins are no-ops.
func (r *AppointmentRepo) MarkStarted(ctx context.Context, appointmentID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE appointments SET actual_start=NOW() WHERE id=$1 AND actual_start IS NULL`, appointmentID)
	return err
}

// MarkExtensionRequested flips extension_requested exactly once. Returns
// false when a request was already pending or granted, so concurrent
// requesters see a single winner.
func (r *AppointmentRepo) MarkExtensionRequested(ctx context.Context, appointmentID, requesterID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET extension_requested=TRUE, extension_requested_by=$2
        WHERE id=$1 AND extension_requested=FALSE AND extension_granted=FALSE`, appointmentID, requesterID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}
