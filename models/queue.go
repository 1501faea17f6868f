package models

import (
	"time"
)

// Queue is a waiting line identified by a short shareable code. People holds
// the waiting members ordered by joined_at ascending; it is the single
// ordering source for both the host roster and customer positions.
type Queue struct {
	ID            string    `json:"id"`
	HostUserID    string    `json:"host_user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Location      string    `json:"location,omitempty"`
	TimePerPerson int       `json:"time_per_person"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	People        []Member  `json:"people"`
}

// PositionOf returns the 1-based rank of memberID among waiting members, or
// 0 if the member is not in line (already served, removed, left, or the
// queue ended).
func (q *Queue) PositionOf(memberID string) int {
	for i, m := range q.People {
		if m.ID == memberID {
			return i + 1
		}
	}
	return 0
}

// Roster returns the waiting members in serving order. Host display and
// "people ahead of me" both derive from this list so the two views can
// never disagree.
func (q *Queue) Roster() []Member {
	return q.People
}

// EstimatedWaitMinutes estimates the wait for a 1-based position, floored
// at zero.
func (q *Queue) EstimatedWaitMinutes(position int) int {
	if position <= 1 {
		return 0
	}
	return (position - 1) * q.TimePerPerson
}
