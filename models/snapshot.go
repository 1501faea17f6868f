package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the in-memory view of all active queues and their waiting
// members at a point in time. Seq increases monotonically; the sync engine
// refuses to apply a snapshot older than the one it already holds.
type Snapshot struct {
	Seq       uint64    `json:"seq"`
	FetchedAt time.Time `json:"fetched_at"`
	Queues    []Queue   `json:"queues"`
}

// QueueByID looks a queue up in the snapshot.
func (s Snapshot) QueueByID(id string) *Queue {
	for i := range s.Queues {
		if s.Queues[i].ID == id {
			return &s.Queues[i]
		}
	}
	return nil
}

// HostQueue returns the active queue hosted by the given user, if any.
func (s Snapshot) HostQueue(hostUserID string) *Queue {
	for i := range s.Queues {
		if s.Queues[i].HostUserID == hostUserID {
			return &s.Queues[i]
		}
	}
	return nil
}

// ViewerState is the per-user projection of the snapshot: the queue the
// user is currently waiting in, their member record, 1-based position and
// estimated wait. Position 0 means the membership vanished between
// refreshes (served or removed meanwhile); not an error.
type ViewerState struct {
	CurrentQueue    *Queue  `json:"current_queue"`
	CurrentMember   *Member `json:"current_member"`
	Position        int     `json:"position"`
	EstimatedWait   int     `json:"estimated_wait_minutes"`
	IsLoading       bool    `json:"is_loading"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	SnapshotSeq     uint64  `json:"snapshot_seq"`
	SnapshotFetched string  `json:"snapshot_fetched_at,omitempty"`
}

// QueueStats summarizes a queue for the host dashboard.
type QueueStats struct {
	QueueID          string          `json:"queue_id"`
	WaitingCount     int             `json:"waiting_count"`
	ServedCount      int             `json:"served_count"`
	RemovedCount     int             `json:"removed_count"`
	LeftCount        int             `json:"left_count"`
	AvgWaitMinutes   decimal.Decimal `json:"avg_wait_minutes"`
	DrainTimeMinutes int             `json:"drain_time_minutes"`
}

// LocationSuggestion is one result of the external address lookup.
type LocationSuggestion struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
