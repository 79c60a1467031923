package models

// ConnectionState tracks the feed connection lifecycle. Exactly one value is
// current at a time.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Notification is a transient single-slot user message. A new notification
// replaces the current one immediately; it does not queue.
type Notification struct {
	Message string           `json:"message"`
	Kind    NotificationKind `json:"kind"`
}
