package models

import (
	"fmt"
	"time"
)

// MemberStatus is the lifecycle state of a queue member. "waiting" is the
// only active state; every other state is terminal and never transitions
// again.
type MemberStatus string

const (
	StatusWaiting MemberStatus = "waiting"
	StatusServed  MemberStatus = "served"
	StatusRemoved MemberStatus = "removed"
	StatusLeft    MemberStatus = "left"
	StatusClosed  MemberStatus = "closed"
)

// ParseMemberStatus validates a raw status value at the store boundary.
func ParseMemberStatus(raw string) (MemberStatus, error) {
	switch MemberStatus(raw) {
	case StatusWaiting, StatusServed, StatusRemoved, StatusLeft, StatusClosed:
		return MemberStatus(raw), nil
	}
	return "", fmt.Errorf("unknown member status %q", raw)
}

// Terminal reports whether the status admits no further transitions.
func (s MemberStatus) Terminal() bool {
	return s != StatusWaiting
}

type Member struct {
	ID          string       `json:"id"`
	QueueID     string       `json:"queue_id"`
	UserID      string       `json:"user_id"`
	DisplayName string       `json:"display_name"`
	ContactInfo string       `json:"contact_info,omitempty"`
	JoinedAt    time.Time    `json:"joined_at"`
	Status      MemberStatus `json:"status"`
}
