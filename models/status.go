package models

import "strings"

// Status is the lifecycle state of a repair request
type Status string

const (
	StatusNew        Status = "New"
	StatusInProgress Status = "InProgress"
	StatusReady      Status = "Ready"
	StatusClosed     Status = "Closed"
	StatusRejected   Status = "Rejected"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusNew, StatusInProgress, StatusReady, StatusClosed, StatusRejected}

var transitions = map[Status][]Status{
	StatusNew:        {StatusInProgress, StatusClosed, StatusRejected},
	StatusInProgress: {StatusReady, StatusClosed, StatusRejected},
	StatusReady:      {StatusClosed},
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusRejected
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStatus matches a status name case-insensitively
func ParseStatus(value string) (Status, bool) {
	value = strings.TrimSpace(value)
	for _, known := range Statuses {
		if strings.EqualFold(value, string(known)) {
			return known, true
		}
	}
	return "", false
}
