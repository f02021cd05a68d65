package model

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Activity is one entry of the system activity log.
type Activity struct {
	ID        int64
	Component string
	Message   string
	Severity  Severity
	UserID    *string
	CreatedAt time.Time
}
