package model

import "time"

// WebhookLog is the append-only record of one inbound gateway notification.
type WebhookLog struct {
	ID         string // ULID, sortable by arrival
	Gateway    string
	EventType  string
	Reference  string
	Payload    string
	Signature  string
	Processed  bool
	Error      string
	ReceivedAt time.Time
}
