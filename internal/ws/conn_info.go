package ws

import "time"

// ConnInfo is the immutable identity and trace context captured at upgrade
// time; it travels with the connection into lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
