// Package access computes read/send permission for a consultation chat from
// the appointment's externally owned status and wall-clock time. The gate
// keeps no state of its own; the only side effect of a positive decision is
// the set-once actual start recorded by the caller.
package access

import (
	"errors"
	"time"

	"consult-chat/internal/models"
)

// ErrForbidden is returned when the user is neither the appointment's
// patient nor its doctor.
var ErrForbidden = errors.New("user is not a participant of the appointment")

// State of the messaging window.
type State string

const (
	StateNotYetActive         State = "NOT_YET_ACTIVE"
	StateActiveWritable       State = "ACTIVE_WRITABLE"
	StateGraceExpiredOrClosed State = "GRACE_EXPIRED_OR_CLOSED"
)

// DefaultGrace is the extra messaging window after the scheduled end.
const DefaultGrace = 10 * time.Minute

// Decision is the gate's verdict for one participant at one instant.
type Decision struct {
	CanRead bool
	CanSend bool
	State   State
	Reason  string
}

// Gate evaluates the messaging window.
type Gate struct {
	grace time.Duration
}

// NewGate builds a gate with the given grace period; zero means DefaultGrace.
func NewGate(grace time.Duration) *Gate {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Gate{grace: grace}
}

// Grace reports the configured grace period.
func (g *Gate) Grace() time.Duration {
	return g.grace
}

// Evaluate computes the decision for a participant. History is always
// readable; sending requires IN_PROGRESS status and now inside
// [scheduledStart, scheduledEnd+grace]. Returns ErrForbidden for
// non-participants.
func (g *Gate) Evaluate(appt models.Appointment, userID int64, now time.Time) (Decision, error) {
	if !appt.HasParticipant(userID) {
		return Decision{}, ErrForbidden
	}

	d := Decision{CanRead: true}

	if now.Before(appt.ScheduledStart) {
		d.State = StateNotYetActive
		d.Reason = "appointment has not started yet"
		return d, nil
	}
	if now.After(appt.ScheduledEnd.Add(g.grace)) {
		d.State = StateGraceExpiredOrClosed
		d.Reason = "appointment window has closed"
		return d, nil
	}

	// Inside the time window. The status gate dominates: a CONFIRMED but
	// not started appointment is still not writable.
	switch appt.Status {
	case models.StatusInProgress:
	case models.StatusPending, models.StatusConfirmed:
		d.State = StateNotYetActive
		d.Reason = "consultation has not been started"
		return d, nil
	default:
		d.State = StateGraceExpiredOrClosed
		d.Reason = "appointment is not in progress"
		return d, nil
	}

	d.CanSend = true
	d.State = StateActiveWritable
	return d, nil
}
