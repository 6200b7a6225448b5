package models

import (
	"database/sql"
	"time"
)

// MessageKind discriminates the message payload.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// Message is one entry in a room's append-only log. Deleted messages stay
// in storage and are only filtered out of list queries.
type Message struct {
	ID            int64          `db:"id" json:"id"`
	RoomID        int64          `db:"room_id" json:"room_id"`
	AppointmentID int64          `db:"appointment_id" json:"appointment_id"`
	SenderID      int64          `db:"sender_id" json:"sender_id"`
	Kind          MessageKind    `db:"kind" json:"kind"`
	Content       sql.NullString `db:"content" json:"-"`
	FileName      sql.NullString `db:"file_name" json:"-"`
	FileURL       sql.NullString `db:"file_url" json:"-"`
	FileSize      sql.NullInt64  `db:"file_size" json:"-"`
	Deleted       bool           `db:"deleted" json:"deleted"`
	EditedAt      sql.NullTime   `db:"edited_at" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`

	// ReadBy is loaded from message_reads when callers ask for it; not a column.
	ReadBy []int64 `db:"-" json:"read_by,omitempty"`
}

// Text returns the text content, empty for file/system rows without one.
func (m Message) Text() string {
	return m.Content.String
}

// FileMeta is attachment metadata produced by the upload service.
type FileMeta struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
	Size int64  `json:"size"`
}

// MessageView is the wire representation broadcast to clients.
type MessageView struct {
	ID            int64       `json:"id"`
	RoomID        int64       `json:"room_id"`
	AppointmentID int64       `json:"appointment_id"`
	SenderID      int64       `json:"sender_id"`
	Kind          MessageKind `json:"kind"`
	Text          string      `json:"text,omitempty"`
	File          *FileMeta   `json:"file,omitempty"`
	ReadBy        []int64     `json:"read_by,omitempty"`
	EditedAt      *time.Time  `json:"edited_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// View converts a stored message to its wire form.
func (m Message) View() MessageView {
	v := MessageView{
		ID:            m.ID,
		RoomID:        m.RoomID,
		AppointmentID: m.AppointmentID,
		SenderID:      m.SenderID,
		Kind:          m.Kind,
		Text:          m.Content.String,
		ReadBy:        m.ReadBy,
		CreatedAt:     m.CreatedAt,
	}
	if m.Kind == MessageKindFile && m.FileURL.Valid {
		v.File = &FileMeta{Name: m.FileName.String, URL: m.FileURL.String, Size: m.FileSize.Int64}
	}
	if m.EditedAt.Valid {
		t := m.EditedAt.Time
		v.EditedAt = &t
	}
	return v
}
