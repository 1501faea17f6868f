// Package store owns the durable queues/queue_members tables. It is the only
// shared mutable resource in the system; all cross-client coordination
// reduces to the conditional single-row updates implemented here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"queueline/internal/feed"
	"queueline/models"
)

type Store struct {
	db         dbx.Builder
	notifier   feed.Notifier
	strictJoin bool
}

// Open connects to the SQLite database at dsn.
func Open(dsn string) (*dbx.DB, error) {
	db, err := dbx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dsn, err)
	}
	// SQLite allows a single writer; serialize access instead of surfacing
	// SQLITE_BUSY to callers.
	db.DB().SetMaxOpenConns(1)
	return db, nil
}

func New(db dbx.Builder, notifier feed.Notifier, strictJoin bool) *Store {
	return &Store{db: db, notifier: notifier, strictJoin: strictJoin}
}

// Migrate creates the schema. The partial unique index on waiting display
// names is only installed under strict join mode; without it the duplicate
// name check stays advisory (read-then-write) as in the original data layer.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS queues (
			id              TEXT PRIMARY KEY,
			host_user_id    TEXT NOT NULL,
			name            TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			time_per_person INTEGER NOT NULL DEFAULT 5,
			is_active       INTEGER NOT NULL DEFAULT 1,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS queue_members (
			id           TEXT PRIMARY KEY,
			queue_id     TEXT NOT NULL REFERENCES queues(id),
			user_id      TEXT NOT NULL,
			display_name TEXT NOT NULL,
			contact_info TEXT NOT NULL DEFAULT '',
			joined_at    INTEGER NOT NULL,
			finished_at  INTEGER,
			status       TEXT NOT NULL DEFAULT 'waiting'
				CHECK (status IN ('waiting','served','removed','left','closed'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_queue_status_joined
			ON queue_members (queue_id, status, joined_at)`,
		`CREATE INDEX IF NOT EXISTS idx_members_user_status
			ON queue_members (user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_queues_active ON queues (is_active)`,
	}
	if s.strictJoin {
		stmts = append(stmts,
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_members_waiting_name
				ON queue_members (queue_id, lower(display_name))
				WHERE status = 'waiting'`,
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_members_waiting_user
				ON queue_members (queue_id, user_id)
				WHERE status = 'waiting'`,
		)
	}
	for _, stmt := range stmts {
		if _, err := s.db.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure,
// the signal the create-queue retry loop and strict join mode key off.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) Health(ctx context.Context) error {
	var one int
	if err := s.db.NewQuery("SELECT 1").WithContext(ctx).Row(&one); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

type queueRow struct {
	ID            string `db:"id"`
	HostUserID    string `db:"host_user_id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	Location      string `db:"location"`
	TimePerPerson int    `db:"time_per_person"`
	IsActive      int    `db:"is_active"`
	CreatedAt     int64  `db:"created_at"`
}

type memberRow struct {
	ID          string `db:"id"`
	QueueID     string `db:"queue_id"`
	UserID      string `db:"user_id"`
	DisplayName string `db:"display_name"`
	ContactInfo string `db:"contact_info"`
	JoinedAt    int64  `db:"joined_at"`
	Status      string `db:"status"`
}

func (r queueRow) toModel() models.Queue {
	return models.Queue{
		ID:            r.ID,
		HostUserID:    r.HostUserID,
		Name:          r.Name,
		Description:   r.Description,
		Location:      r.Location,
		TimePerPerson: r.TimePerPerson,
		IsActive:      r.IsActive != 0,
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
		People:        []models.Member{},
	}
}

func (r memberRow) toModel() (models.Member, error) {
	st, err := models.ParseMemberStatus(r.Status)
	if err != nil {
		return models.Member{}, fmt.Errorf("store: member %s: %w", r.ID, err)
	}
	return models.Member{
		ID:          r.ID,
		QueueID:     r.QueueID,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		ContactInfo: r.ContactInfo,
		JoinedAt:    time.UnixMilli(r.JoinedAt).UTC(),
		Status:      st,
	}, nil
}

// ActiveQueues returns all queues with is_active = 1, newest first, without
// their member lists.
func (s *Store) ActiveQueues(ctx context.Context) ([]models.Queue, error) {
	var rows []queueRow
	err := s.db.Select("*").
		From("queues").
		Where(dbx.HashExp{"is_active": 1}).
		OrderBy("created_at DESC", "id").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: active queues: %w", err)
	}
	queues := make([]models.Queue, 0, len(rows))
	for _, r := range rows {
		queues = append(queues, r.toModel())
	}
	return queues, nil
}

// WaitingMembers returns every waiting member of the given queues ordered by
// joined_at ascending (id as a stable tiebreak for same-millisecond joins).
func (s *Store) WaitingMembers(ctx context.Context, queueIDs []string) ([]models.Member, error) {
	if len(queueIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(queueIDs))
	for i, id := range queueIDs {
		ids[i] = id
	}
	var rows []memberRow
	err := s.db.Select("*").
		From("queue_members").
		Where(dbx.And(
			dbx.In("queue_id", ids...),
			dbx.HashExp{"status": string(models.StatusWaiting)},
		)).
		OrderBy("joined_at ASC", "id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("store: waiting members: %w", err)
	}
	members := make([]models.Member, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func (s *Store) QueueByID(ctx context.Context, id string) (*models.Queue, error) {
	var row queueRow
	err := s.db.Select("*").
		From("queues").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: queue %s: %w", id, err)
	}
	q := row.toModel()
	return &q, nil
}

// LatestWaitingMembership returns the user's most recent waiting membership
// across all queues, or nil when the user is not in line anywhere.
func (s *Store) LatestWaitingMembership(ctx context.Context, userID string) (*models.Member, error) {
	var row memberRow
	err := s.db.Select("*").
		From("queue_members").
		Where(dbx.HashExp{"user_id": userID, "status": string(models.StatusWaiting)}).
		OrderBy("joined_at DESC", "id DESC").
		WithContext(ctx).
		One(&row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: membership of %s: %w", userID, err)
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MemberByID fetches a single member record regardless of status.
func (s *Store) MemberByID(ctx context.Context, queueID, memberID string) (*models.Member, error) {
	var row memberRow
	err := s.db.Select("*").
		From("queue_members").
		Where(dbx.HashExp{"id": memberID, "queue_id": queueID}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: member %s: %w", memberID, err)
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// OldestWaiting returns the next member to be served, or nil for an empty
// queue.
func (s *Store) OldestWaiting(ctx context.Context, queueID string) (*models.Member, error) {
	var row memberRow
	err := s.db.Select("*").
		From("queue_members").
		Where(dbx.HashExp{"queue_id": queueID, "status": string(models.StatusWaiting)}).
		OrderBy("joined_at ASC", "id ASC").
		WithContext(ctx).
		One(&row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: oldest waiting in %s: %w", queueID, err)
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// WaitingNameExists reports whether a waiting member of the queue already
// uses the display name, case-insensitively.
func (s *Store) WaitingNameExists(ctx context.Context, queueID, displayName string) (bool, error) {
	var count int
	err := s.db.Select("COUNT(*)").
		From("queue_members").
		Where(dbx.And(
			dbx.HashExp{"queue_id": queueID, "status": string(models.StatusWaiting)},
			dbx.NewExp("LOWER(display_name) = LOWER({:name})", dbx.Params{"name": displayName}),
		)).
		WithContext(ctx).
		Row(&count)
	if err != nil {
		return false, fmt.Errorf("store: name check: %w", err)
	}
	return count > 0, nil
}

func (s *Store) HasWaitingMember(ctx context.Context, queueID, userID string) (bool, error) {
	var count int
	err := s.db.Select("COUNT(*)").
		From("queue_members").
		Where(dbx.HashExp{
			"queue_id": queueID,
			"user_id":  userID,
			"status":   string(models.StatusWaiting),
		}).
		WithContext(ctx).
		Row(&count)
	if err != nil {
		return false, fmt.Errorf("store: membership check: %w", err)
	}
	return count > 0, nil
}

func (s *Store) InsertQueue(ctx context.Context, q models.Queue) error {
	_, err := s.db.Insert("queues", dbx.Params{
		"id":              q.ID,
		"host_user_id":    q.HostUserID,
		"name":            q.Name,
		"description":     q.Description,
		"location":        q.Location,
		"time_per_person": q.TimePerPerson,
		"is_active":       boolToInt(q.IsActive),
		"created_at":      q.CreatedAt.UnixMilli(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return err
	}
	s.notify(ctx, feed.TableQueues, "create")
	return nil
}

// QueueMeta carries the host-editable display fields.
type QueueMeta struct {
	Name          string
	Description   string
	Location      string
	TimePerPerson int
}

func (s *Store) UpdateQueueMeta(ctx context.Context, id string, meta QueueMeta) error {
	_, err := s.db.Update("queues", dbx.Params{
		"name":            meta.Name,
		"description":     meta.Description,
		"location":        meta.Location,
		"time_per_person": meta.TimePerPerson,
	}, dbx.HashExp{"id": id}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("store: update queue %s: %w", id, err)
	}
	s.notify(ctx, feed.TableQueues, "update")
	return nil
}

// DeactivateQueue flips is_active to false. The predicate makes ending a
// queue a one-way, once-only transition; false means the queue was already
// inactive (or missing).
func (s *Store) DeactivateQueue(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Update("queues",
		dbx.Params{"is_active": 0},
		dbx.HashExp{"id": id, "is_active": 1},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("store: deactivate queue %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.notify(ctx, feed.TableQueues, "update")
	}
	return n > 0, nil
}

func (s *Store) InsertMember(ctx context.Context, m models.Member) error {
	_, err := s.db.Insert("queue_members", dbx.Params{
		"id":           m.ID,
		"queue_id":     m.QueueID,
		"user_id":      m.UserID,
		"display_name": m.DisplayName,
		"contact_info": m.ContactInfo,
		"joined_at":    m.JoinedAt.UnixMilli(),
		"status":       string(m.Status),
	}).WithContext(ctx).Execute()
	if err != nil {
		return err
	}
	s.notify(ctx, feed.TableMembers, "create")
	return nil
}

// TransitionMember is the conditional update all mutations reduce to: move
// the member out of waiting only if it is still waiting. A false result
// means another writer won the race and the caller should treat its own
// operation as a no-op.
func (s *Store) TransitionMember(ctx context.Context, queueID, memberID string, to models.MemberStatus) (bool, error) {
	if !to.Terminal() {
		return false, fmt.Errorf("store: invalid transition target %q", to)
	}
	res, err := s.db.Update("queue_members",
		dbx.Params{
			"status":      string(to),
			"finished_at": time.Now().UnixMilli(),
		},
		dbx.HashExp{
			"id":       memberID,
			"queue_id": queueID,
			"status":   string(models.StatusWaiting),
		},
	).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("store: transition member %s: %w", memberID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.notify(ctx, feed.TableMembers, "update")
	}
	return n > 0, nil
}

// CloseWaitingMembers bulk-transitions every waiting member of the queue to
// closed. Used by the end-queue cascade.
func (s *Store) CloseWaitingMembers(ctx context.Context, queueID string) (int64, error) {
	res, err := s.db.Update("queue_members",
		dbx.Params{
			"status":      string(models.StatusClosed),
			"finished_at": time.Now().UnixMilli(),
		},
		dbx.HashExp{"queue_id": queueID, "status": string(models.StatusWaiting)},
	).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("store: close members of %s: %w", queueID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, feed.TableMembers, "update")
	}
	return n, nil
}

// Stats aggregates the queue for the host dashboard. Average wait is over
// served members only; drain time estimates clearing the current line.
func (s *Store) Stats(ctx context.Context, queueID string) (*models.QueueStats, error) {
	q, err := s.QueueByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, nil
	}

	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err = s.db.Select("status", "COUNT(*) AS n").
		From("queue_members").
		Where(dbx.HashExp{"queue_id": queueID}).
		GroupBy("status").
		WithContext(ctx).
		All(&counts)
	if err != nil {
		return nil, fmt.Errorf("store: stats of %s: %w", queueID, err)
	}

	stats := &models.QueueStats{QueueID: queueID, AvgWaitMinutes: decimal.Zero}
	for _, c := range counts {
		switch models.MemberStatus(c.Status) {
		case models.StatusWaiting:
			stats.WaitingCount = c.N
		case models.StatusServed:
			stats.ServedCount = c.N
		case models.StatusRemoved:
			stats.RemovedCount = c.N
		case models.StatusLeft:
			stats.LeftCount = c.N
		}
	}

	var avgMillis sql.NullFloat64
	err = s.db.Select("AVG(finished_at - joined_at)").
		From("queue_members").
		Where(dbx.HashExp{"queue_id": queueID, "status": string(models.StatusServed)}).
		WithContext(ctx).
		Row(&avgMillis)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("store: avg wait of %s: %w", queueID, err)
	}
	if avgMillis.Valid {
		stats.AvgWaitMinutes = decimal.NewFromFloat(avgMillis.Float64 / 60000.0).Round(2)
	}
	stats.DrainTimeMinutes = stats.WaitingCount * q.TimePerPerson
	return stats, nil
}

func (s *Store) notify(ctx context.Context, table, action string) {
	if s.notifier == nil {
		return
	}
	ev := feed.Event{Table: table, Action: action, At: time.Now().UTC()}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		slog.Warn("store: change notification failed", "table", table, "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
