package model

import "time"

// Enrollment is a student's standing in one assessment, owned by the
// assessment module; payments only read it and write the paid flags.
type Enrollment struct {
	UserID          string
	AssessmentID    string
	MaxRetakes      int
	RetakeCount     int
	RetakePaid      bool
	ReviewPaid      bool
	ReviewExpiresAt *time.Time
	LastCompletedAt *time.Time
	LastRetakeAt    *time.Time
}

// FreeRetakesLeft is the unused part of the free retake quota.
func (e *Enrollment) FreeRetakesLeft() int {
	if e.RetakeCount >= e.MaxRetakes {
		return 0
	}
	return e.MaxRetakes - e.RetakeCount
}

// CooldownAnchor is the later of the last completion and the last retake grant.
func (e *Enrollment) CooldownAnchor() *time.Time {
	switch {
	case e.LastCompletedAt == nil:
		return e.LastRetakeAt
	case e.LastRetakeAt == nil:
		return e.LastCompletedAt
	case e.LastRetakeAt.After(*e.LastCompletedAt):
		return e.LastRetakeAt
	default:
		return e.LastCompletedAt
	}
}

// CooldownRemaining is how long until another retake may be granted.
func (e *Enrollment) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	anchor := e.CooldownAnchor()
	if anchor == nil {
		return 0
	}
	if left := anchor.Add(cooldown).Sub(now); left > 0 {
		return left
	}
	return 0
}
