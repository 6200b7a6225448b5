package models

import (
	"database/sql"
	"time"
)

// Room is the single persistent conversation between a patient and a doctor.
// Every appointment the pair ever shares is linked to the same room.
type Room struct {
	ID            int64          `db:"id" json:"id"`
	PatientID     int64          `db:"patient_id" json:"patient_id"`
	DoctorID      int64          `db:"doctor_id" json:"doctor_id"`
	LastMessage   sql.NullString `db:"last_message" json:"-"`
	LastSenderID  sql.NullInt64  `db:"last_sender_id" json:"-"`
	LastMessageAt sql.NullTime   `db:"last_message_at" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Participants reports the two user ids of the room.
func (r Room) Participants() (int64, int64) {
	return r.PatientID, r.DoctorID
}

// HasParticipant reports whether the user belongs to the room.
func (r Room) HasParticipant(userID int64) bool {
	return r.PatientID == userID || r.DoctorID == userID
}

// PeerOf returns the other participant of the room.
func (r Room) PeerOf(userID int64) int64 {
	if r.PatientID == userID {
		return r.DoctorID
	}
	return r.PatientID
}

// LastMessageSnapshot is the denormalized preview stored on the room.
type LastMessageSnapshot struct {
	Text     string
	SenderID int64
	SentAt   time.Time
}

// RoomSummary is the API-friendly view of a room for one user.
type RoomSummary struct {
	RoomID        int64      `json:"room_id"`
	PeerID        int64      `json:"peer_id"`
	PeerName      string     `json:"peer_name,omitempty"`
	PeerAvatarURL string     `json:"peer_avatar_url,omitempty"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	CreatedAt     time.Time  `json:"created_at"`
}
