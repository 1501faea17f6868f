package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"queueline/internal/feed"
	"queueline/internal/push"
	"queueline/internal/store"
	"queueline/models"
	"queueline/monitoring"
)

// SyncEngine maintains the process-wide snapshot of all active queues and
// their waiting members. It is the single writer of the snapshot; everyone
// else reads. Refreshes happen on startup, on every change-feed
// notification, and after every local mutation.
type SyncEngine struct {
	store    *store.Store
	notifier feed.Notifier
	push     push.Publisher
	debounce time.Duration

	// seq stamps every refresh; a fetched snapshot is applied only if its
	// stamp is newer than the one currently held, so a slow in-flight
	// refresh can never overwrite fresher state with staler state.
	seq atomic.Uint64

	mu        sync.RWMutex
	snap      models.Snapshot
	lastErr   error
	isLoading bool
}

func NewSyncEngine(st *store.Store, notifier feed.Notifier, publisher push.Publisher, debounce time.Duration) *SyncEngine {
	if publisher == nil {
		publisher = push.NopPublisher{}
	}
	return &SyncEngine{
		store:    st,
		notifier: notifier,
		push:     publisher,
		debounce: debounce,
	}
}

// Refresh pulls a fresh snapshot from the store and applies it if it is
// still the newest. A failed refresh keeps the last good snapshot and
// records a recoverable error; staleness is acceptable, corruption is not.
func (e *SyncEngine) Refresh(ctx context.Context, showLoader bool) error {
	if showLoader {
		e.mu.Lock()
		e.isLoading = true
		e.mu.Unlock()
	}
	start := time.Now()
	seq := e.seq.Add(1)

	snap, err := e.fetch(ctx, seq)

	e.mu.Lock()
	e.isLoading = false
	if err != nil {
		e.lastErr = err
		e.mu.Unlock()
		monitoring.ObserveRefresh(time.Since(start), false)
		return err
	}
	if snap.Seq <= e.snap.Seq {
		// A newer refresh already landed; discard this one.
		e.mu.Unlock()
		monitoring.ObserveRefresh(time.Since(start), true)
		return nil
	}
	prev := e.snap
	e.snap = snap
	e.lastErr = nil
	e.mu.Unlock()

	monitoring.ObserveRefresh(time.Since(start), true)
	e.publishDiff(prev, snap)
	return nil
}

func (e *SyncEngine) fetch(ctx context.Context, seq uint64) (models.Snapshot, error) {
	queues, err := e.store.ActiveQueues(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}

	ids := make([]string, len(queues))
	byID := make(map[string]int, len(queues))
	for i := range queues {
		ids[i] = queues[i].ID
		byID[queues[i].ID] = i
	}

	members, err := e.store.WaitingMembers(ctx, ids)
	if err != nil {
		return models.Snapshot{}, err
	}
	// Members arrive joined_at-ascending; appending per queue preserves the
	// serving order.
	for _, m := range members {
		if i, ok := byID[m.QueueID]; ok {
			queues[i].People = append(queues[i].People, m)
		}
	}

	return models.Snapshot{Seq: seq, FetchedAt: time.Now().UTC(), Queues: queues}, nil
}

// publishDiff pushes position changes to affected users. Queues that left
// the active set get a queue-ended notice for each previously waiting member.
func (e *SyncEngine) publishDiff(prev, next models.Snapshot) {
	prevPos := map[string]int{}
	for i := range prev.Queues {
		q := &prev.Queues[i]
		for _, m := range q.People {
			prevPos[m.ID] = q.PositionOf(m.ID)
		}
	}

	nextQueues := map[string]bool{}
	for i := range next.Queues {
		q := &next.Queues[i]
		nextQueues[q.ID] = true
		for pos, m := range q.People {
			position := pos + 1
			if prevPos[m.ID] == position {
				continue
			}
			e.push.PositionChanged(m.UserID, q.ID, position, q.EstimatedWaitMinutes(position))
		}
	}

	for i := range prev.Queues {
		q := &prev.Queues[i]
		if nextQueues[q.ID] {
			continue
		}
		for _, m := range q.People {
			e.push.QueueEnded(m.UserID, q.ID)
		}
	}
}

// Run performs the initial load and then re-refreshes on every change-feed
// notification until ctx is cancelled. Notification bursts are debounced;
// a pending refresh superseded by a newer notification is cancelled.
func (e *SyncEngine) Run(ctx context.Context) {
	if err := e.Refresh(ctx, true); err != nil {
		slog.Error("sync: initial refresh failed", "error", err)
	}

	events, cancel := e.notifier.Subscribe(ctx)
	defer cancel()

	deb := NewDebouncer(e.debounce)
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			deb.Do(ctx, func(ctx context.Context) {
				if err := e.Refresh(ctx, false); err != nil {
					slog.Warn("sync: refresh after change event failed", "error", err)
				}
			})
		}
	}
}

// Snapshot returns the current snapshot. Readers must treat it as
// immutable.
func (e *SyncEngine) Snapshot() models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// LastError returns the recoverable error of the most recent failed
// refresh, cleared by the next success.
func (e *SyncEngine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// ViewerState projects the snapshot for one user: their waiting membership
// (most recent, read from the store), the parent queue resolved from the
// snapshot, and the derived position and wait estimate. A membership whose
// queue is missing from the snapshot (just ended, or not yet synced) yields
// a member without a queue; callers render that as "no longer in line".
func (e *SyncEngine) ViewerState(ctx context.Context, userID string) models.ViewerState {
	e.mu.RLock()
	snap := e.snap
	loading := e.isLoading
	lastErr := e.lastErr
	e.mu.RUnlock()

	vs := models.ViewerState{
		IsLoading:       loading,
		SnapshotSeq:     snap.Seq,
		SnapshotFetched: snap.FetchedAt.Format(time.RFC3339),
	}
	if lastErr != nil {
		vs.ErrorMessage = lastErr.Error()
	}

	member, err := e.store.LatestWaitingMembership(ctx, userID)
	if err != nil {
		vs.ErrorMessage = err.Error()
		return vs
	}
	if member == nil {
		return vs
	}
	vs.CurrentMember = member

	queue := snap.QueueByID(member.QueueID)
	if queue == nil {
		return vs
	}
	vs.CurrentQueue = queue
	vs.Position = queue.PositionOf(member.ID)
	vs.EstimatedWait = queue.EstimatedWaitMinutes(vs.Position)
	return vs
}

// HostQueue returns the active queue hosted by the user, if any.
func (e *SyncEngine) HostQueue(userID string) *models.Queue {
	snap := e.Snapshot()
	return snap.HostQueue(userID)
}
