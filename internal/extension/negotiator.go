// Package extension implements the two-party handshake that prolongs an
// in-progress consultation. The accept path is the one serialization point
// of the service: a single database transaction locks the appointment and
// the patient's wallet row, so concurrent accepts resolve to exactly one
// debit and one schedule change.
package extension

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
	"consult-chat/internal/telemetry"
)

var (
	ErrNotParticipant       = errors.New("user is not a participant of the appointment")
	ErrNotActive            = errors.New("appointment is not in progress")
	ErrAlreadyRequested     = errors.New("an extension request is already pending")
	ErrAlreadyGranted       = errors.New("the extension was already granted")
	ErrNoPendingRequest     = errors.New("no extension request is pending")
	ErrInsufficientFunds    = errors.New("wallet balance is below the extension cost")
	ErrRecipientUnavailable = errors.New("the other participant is not connected")
	ErrConflict             = errors.New("extension transaction could not be serialized")
)

const (
	// DefaultIncrement is how much an accepted extension adds to the
	// scheduled end.
	DefaultIncrement = 30 * time.Minute

	maxTxAttempts = 3
)

// ConnectionRegistry answers whether a user has at least one live transport
// connection.
type ConnectionRegistry interface {
	IsConnected(userID int64) bool
}

// RequestResult describes a successfully recorded extension request.
type RequestResult struct {
	AppointmentID int64
	RequesterID   int64
	RecipientID   int64
}

// AcceptResult describes a committed extension.
type AcceptResult struct {
	AppointmentID int64
	PatientID     int64
	DoctorID      int64
	AcceptedBy    int64
	Cost          int64
	NewEndTime    time.Time
}

// Negotiator drives the NONE -> REQUESTED -> GRANTED protocol.
type Negotiator struct {
	db        *sqlx.DB
	appts     repositories.AppointmentRepository
	registry  ConnectionRegistry
	audit     *telemetry.AuditEmitter
	cost      int64
	increment time.Duration

	// beforeCommit is a test hook injected between the wallet read and the
	// writes to verify all-or-nothing behavior.
	beforeCommit func() error
}

// NewNegotiator constructs a Negotiator. cost is in cents; increment <= 0
// means DefaultIncrement.
func NewNegotiator(db *sqlx.DB, appts repositories.AppointmentRepository, registry ConnectionRegistry, audit *telemetry.AuditEmitter, cost int64, increment time.Duration) *Negotiator {
	if increment <= 0 {
		increment = DefaultIncrement
	}
	return &Negotiator{
		db:        db,
		appts:     appts,
		registry:  registry,
		audit:     audit,
		cost:      cost,
		increment: increment,
	}
}

// Cost reports the configured extension price in cents.
func (n *Negotiator) Cost() int64 {
	return n.cost
}

// Request records an extension request and names the participant to notify.
// There is no path resetting a pending request: if the counterpart never
// answers, later requests for the appointment keep failing with
// ErrAlreadyRequested.
func (n *Negotiator) Request(ctx context.Context, appointmentID, requesterID int64) (RequestResult, error) {
	appt, err := n.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return RequestResult{}, err
	}
	if !appt.HasParticipant(requesterID) {
		return RequestResult{}, ErrNotParticipant
	}
	if appt.Status != models.StatusInProgress {
		return RequestResult{}, ErrNotActive
	}
	if appt.ExtensionRequested {
		return RequestResult{}, ErrAlreadyRequested
	}

	recipientID := appt.PeerOf(requesterID)
	if !n.registry.IsConnected(recipientID) {
		return RequestResult{}, ErrRecipientUnavailable
	}

	flipped, err := n.appts.MarkExtensionRequested(ctx, appointmentID, requesterID)
	if err != nil {
		return RequestResult{}, err
	}
	if !flipped {
		return RequestResult{}, ErrAlreadyRequested
	}

	return RequestResult{AppointmentID: appointmentID, RequesterID: requesterID, RecipientID: recipientID}, nil
}

// Accept debits the patient's wallet and extends the appointment in one
// transaction. Under concurrent accepts the row locks serialize the
// read-then-write; the loser observes ErrAlreadyGranted. Any failure inside
// the transaction leaves wallet and appointment untouched.
func (n *Negotiator) Accept(ctx context.Context, appointmentID, accepterID int64) (AcceptResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		result, err := n.acceptOnce(ctx, appointmentID, accepterID)
		if err == nil {
			n.auditAccept(ctx, result)
			return result, nil
		}
		if !isSerializationFailure(err) {
			return AcceptResult{}, err
		}
		lastErr = err
		log.Warn().Err(err).Int64("appointment_id", appointmentID).Int("attempt", attempt+1).Msg("extension transaction retry")
	}
	return AcceptResult{}, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (n *Negotiator) acceptOnce(ctx context.Context, appointmentID, accepterID int64) (result AcceptResult, err error) {
	tx, err := n.db.BeginTxx(ctx, nil)
	if err != nil {
		return AcceptResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var appt models.Appointment
	err = tx.GetContext(ctx, &appt, `SELECT id, patient_id, doctor_id, status, scheduled_start, scheduled_end, actual_start,
        extension_requested, extension_requested_by, extension_granted, extension_accepted_by
        FROM appointments WHERE id=$1 FOR UPDATE`, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return AcceptResult{}, repositories.ErrAppointmentNotFound
	}
	if err != nil {
		return AcceptResult{}, err
	}

	if !appt.HasParticipant(accepterID) {
		err = ErrNotParticipant
		return AcceptResult{}, err
	}
	if appt.ExtensionGranted {
		err = ErrAlreadyGranted
		return AcceptResult{}, err
	}
	if !appt.ExtensionRequested {
		err = ErrNoPendingRequest
		return AcceptResult{}, err
	}

	var balance int64
	err = tx.GetContext(ctx, &balance, `SELECT balance FROM wallets WHERE user_id=$1 FOR UPDATE`, appt.PatientID)
	if errors.Is(err, sql.ErrNoRows) {
		return AcceptResult{}, repositories.ErrWalletNotFound
	}
	if err != nil {
		return AcceptResult{}, err
	}
	if balance < n.cost {
		err = ErrInsufficientFunds
		return AcceptResult{}, err
	}

	if n.beforeCommit != nil {
		if err = n.beforeCommit(); err != nil {
			return AcceptResult{}, err
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wallets SET balance = balance - $2, updated_at = NOW() WHERE user_id=$1`, appt.PatientID, n.cost); err != nil {
		return AcceptResult{}, err
	}

	newEnd := appt.ScheduledEnd.Add(n.increment)
	if _, err = tx.ExecContext(ctx, `UPDATE appointments SET scheduled_end=$2, extension_granted=TRUE, extension_accepted_by=$3 WHERE id=$1`,
		appointmentID, newEnd, accepterID); err != nil {
		return AcceptResult{}, err
	}

	if err = tx.Commit(); err != nil {
		return AcceptResult{}, err
	}

	return AcceptResult{
		AppointmentID: appointmentID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		AcceptedBy:    accepterID,
		Cost:          n.cost,
		NewEndTime:    newEnd,
	}, nil
}

func (n *Negotiator) auditAccept(ctx context.Context, result AcceptResult) {
	if n.audit == nil {
		return
	}
	userID := fmt.Sprintf("%d", result.AcceptedBy)
	n.audit.Emit(ctx, "INFO",
		fmt.Sprintf("extension granted: appointment=%d cost=%d new_end=%s", result.AppointmentID, result.Cost, result.NewEndTime.UTC().Format(time.RFC3339)),
		"", &userID)
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
