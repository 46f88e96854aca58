// Package job owns job postings: their requirements, scheduling dates and
// the lifecycle state machine that gates matching.
//
// Valid status graph:
//
//	PENDING ──► OPEN ──► CLOSED ──► OPEN (re-open with a new expiration date)
//	   │          │
//	   │          └────► EXPIRED ──► OPEN | CLOSED
//	   └──► CLOSED
//
//	any non-terminal status ──► ARCHIVED
//
// ARCHIVED is terminal.
package job

import "fmt"

// Status values mirror the job_status column in PostgreSQL.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusExpired  Status = "EXPIRED"
	StatusArchived Status = "ARCHIVED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusOpen, StatusClosed, StatusArchived},
	StatusOpen:    {StatusClosed, StatusExpired, StatusArchived},
	StatusClosed:  {StatusOpen, StatusArchived},
	StatusExpired: {StatusOpen, StatusClosed, StatusArchived},
	// ARCHIVED has no outgoing transitions.
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusOpen, StatusClosed, StatusExpired, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// AllowsMatching returns true for statuses in which a match run may start.
func AllowsMatching(s Status) bool { return s == StatusOpen }

// AllowsInProgressFlag returns true for statuses that may carry
// matchesCalculationInProgress=true.
func AllowsInProgressFlag(s Status) bool { return s == StatusPending || s == StatusOpen }
