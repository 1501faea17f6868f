package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"queueline/internal/status"
	"queueline/internal/store"
	"queueline/models"
	"queueline/monitoring"
	"queueline/utils"
)

// QueueService implements the guarded mutations against the store. Every
// operation validates before it writes, relies on conditional updates for
// cross-client races, and refreshes the sync engine on success so callers
// observe their own writes immediately.
type QueueService struct {
	store        *store.Store
	engine       *SyncEngine
	codeLength   int
	codeAttempts int

	// genCode is swappable so collision handling can be exercised
	// deterministically.
	genCode func(length int) (string, error)
}

func NewQueueService(st *store.Store, engine *SyncEngine, codeLength, codeAttempts int) *QueueService {
	if codeLength < 4 {
		codeLength = 4
	}
	if codeAttempts <= 0 {
		codeAttempts = 5
	}
	return &QueueService{
		store:        st,
		engine:       engine,
		codeLength:   codeLength,
		codeAttempts: codeAttempts,
		genCode:      utils.GenerateQueueCode,
	}
}

type CreateQueueInput struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Location      string `json:"location"`
	TimePerPerson int    `json:"time_per_person"`
}

// CreateQueue allocates a short code and inserts the queue. Code generation
// is probabilistic, so a uniqueness collision regenerates and retries up to
// the attempt budget; any other insert failure is returned as-is.
func (s *QueueService) CreateQueue(ctx context.Context, hostUserID string, in CreateQueueInput) (*models.Queue, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		monitoring.TrackOperation("create_queue", "invalid")
		return nil, status.ErrEmptyName
	}
	timePerPerson := in.TimePerPerson
	if timePerPerson <= 0 {
		timePerPerson = 5
	}

	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := s.genCode(s.codeLength)
		if err != nil {
			return nil, fmt.Errorf("generate queue code: %w", err)
		}

		q := models.Queue{
			ID:            code,
			HostUserID:    hostUserID,
			Name:          name,
			Description:   strings.TrimSpace(in.Description),
			Location:      strings.TrimSpace(in.Location),
			TimePerPerson: timePerPerson,
			IsActive:      true,
			CreatedAt:     time.Now().UTC(),
			People:        []models.Member{},
		}

		err = s.store.InsertQueue(ctx, q)
		if err == nil {
			s.refresh(ctx, "create_queue")
			monitoring.TrackOperation("create_queue", "ok")
			return &q, nil
		}
		if store.IsUniqueViolation(err) {
			slog.Debug("queue code collision, retrying", "code", code, "attempt", attempt+1)
			continue
		}
		monitoring.TrackOperation("create_queue", "error")
		return nil, fmt.Errorf("create queue: %w", err)
	}

	monitoring.TrackOperation("create_queue", "exhausted")
	return nil, status.ErrCodeExhausted
}

// JoinQueue inserts a waiting membership after three advisory checks: the
// queue must exist and be active, the display name must be free among the
// waiters, and the caller must not already be waiting in this queue. The
// checks are read-then-write; under strict join mode the store's partial
// unique indexes close the race and the resulting conflict maps onto the
// same validation errors.
func (s *QueueService) JoinQueue(ctx context.Context, userID, queueID, displayName, contactInfo string) (*models.Member, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		monitoring.TrackOperation("join_queue", "invalid")
		return nil, status.ErrEmptyName
	}

	queue, err := s.store.QueueByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		monitoring.TrackOperation("join_queue", "invalid")
		return nil, status.ErrQueueNotFound
	}
	if !queue.IsActive {
		monitoring.TrackOperation("join_queue", "invalid")
		return nil, status.ErrQueueInactive
	}

	taken, err := s.store.WaitingNameExists(ctx, queueID, name)
	if err != nil {
		return nil, err
	}
	if taken {
		monitoring.TrackOperation("join_queue", "invalid")
		return nil, status.ErrNameTaken
	}

	waiting, err := s.store.HasWaitingMember(ctx, queueID, userID)
	if err != nil {
		return nil, err
	}
	if waiting {
		monitoring.TrackOperation("join_queue", "invalid")
		return nil, status.ErrAlreadyInQueue
	}

	member := models.Member{
		ID:          uuid.NewString(),
		QueueID:     queueID,
		UserID:      userID,
		DisplayName: name,
		ContactInfo: strings.TrimSpace(contactInfo),
		JoinedAt:    time.Now().UTC(),
		Status:      models.StatusWaiting,
	}
	if err := s.store.InsertMember(ctx, member); err != nil {
		if store.IsUniqueViolation(err) {
			// Lost the advisory-check race; the constraint tells us which
			// rule was breached.
			monitoring.TrackOperation("join_queue", "conflict")
			if strings.Contains(err.Error(), "user_id") {
				return nil, status.ErrAlreadyInQueue
			}
			return nil, status.ErrNameTaken
		}
		monitoring.TrackOperation("join_queue", "error")
		return nil, fmt.Errorf("join queue: %w", err)
	}

	s.refresh(ctx, "join_queue")
	monitoring.TrackOperation("join_queue", "ok")
	return &member, nil
}

// CallNext serves the oldest waiting member. The conditional update is the
// only arbiter: if another caller already transitioned the member, this
// invocation reports an empty queue instead of retrying: at-most-once
// service beats guaranteed progress here.
func (s *QueueService) CallNext(ctx context.Context, queueID string) (*models.Member, error) {
	next, err := s.store.OldestWaiting(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		monitoring.TrackOperation("call_next", "empty")
		return nil, nil
	}

	won, err := s.store.TransitionMember(ctx, queueID, next.ID, models.StatusServed)
	if err != nil {
		monitoring.TrackOperation("call_next", "error")
		return nil, err
	}
	if !won {
		monitoring.TrackOperation("call_next", "lost_race")
		return nil, nil
	}

	s.refresh(ctx, "call_next")
	monitoring.TrackOperation("call_next", "ok")
	next.Status = models.StatusServed
	return next, nil
}

// RemovePerson transitions waiting → removed. Removing someone who is no
// longer waiting is a silent no-op.
func (s *QueueService) RemovePerson(ctx context.Context, queueID, memberID string) error {
	won, err := s.store.TransitionMember(ctx, queueID, memberID, models.StatusRemoved)
	if err != nil {
		monitoring.TrackOperation("remove_person", "error")
		return err
	}
	if won {
		s.refresh(ctx, "remove_person")
	}
	monitoring.TrackOperation("remove_person", "ok")
	return nil
}

// LeaveQueue transitions waiting → left with the same idempotence as
// RemovePerson.
func (s *QueueService) LeaveQueue(ctx context.Context, queueID, memberID string) error {
	won, err := s.store.TransitionMember(ctx, queueID, memberID, models.StatusLeft)
	if err != nil {
		monitoring.TrackOperation("leave_queue", "error")
		return err
	}
	if won {
		s.refresh(ctx, "leave_queue")
	}
	monitoring.TrackOperation("leave_queue", "ok")
	return nil
}

// MemberByID fetches a member record for ownership checks.
func (s *QueueService) MemberByID(ctx context.Context, queueID, memberID string) (*models.Member, error) {
	return s.store.MemberByID(ctx, queueID, memberID)
}

// LeaveCurrentQueue resolves the caller's own waiting membership and leaves
// it. No membership, no work.
func (s *QueueService) LeaveCurrentQueue(ctx context.Context, userID string) error {
	member, err := s.store.LatestWaitingMembership(ctx, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return nil
	}
	return s.LeaveQueue(ctx, member.QueueID, member.ID)
}

// EndQueue deactivates the queue and then closes all remaining waiters. The
// two steps are not atomic: a failure on the second step leaves the queue
// inactive with members still marked waiting. That window is invisible to
// snapshot readers (the active-queue filter hides the queue) and the
// cascade can be re-run; the first step is never rolled back.
func (s *QueueService) EndQueue(ctx context.Context, queueID string) error {
	deactivated, err := s.store.DeactivateQueue(ctx, queueID)
	if err != nil {
		monitoring.TrackOperation("end_queue", "error")
		return err
	}
	if !deactivated {
		queue, err := s.store.QueueByID(ctx, queueID)
		if err != nil {
			return err
		}
		if queue == nil {
			monitoring.TrackOperation("end_queue", "invalid")
			return status.ErrQueueNotFound
		}
		// Already ended; fall through so a previously failed cascade still
		// gets a chance to finish.
	}

	closed, err := s.store.CloseWaitingMembers(ctx, queueID)
	if err != nil {
		slog.Error("end queue: closing waiters failed after deactivation", "queue", queueID, "error", err)
		monitoring.TrackOperation("end_queue", "partial")
		return fmt.Errorf("end queue: close waiting members: %w", err)
	}
	slog.Info("queue ended", "queue", queueID, "closed_members", closed)

	s.refresh(ctx, "end_queue")
	monitoring.TrackOperation("end_queue", "ok")
	return nil
}

// UpdateQueue applies host edits to the display metadata.
func (s *QueueService) UpdateQueue(ctx context.Context, queueID string, meta store.QueueMeta) (*models.Queue, error) {
	queue, err := s.store.QueueByID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, status.ErrQueueNotFound
	}

	meta.Name = strings.TrimSpace(meta.Name)
	if meta.Name == "" {
		return nil, status.ErrEmptyName
	}
	if meta.TimePerPerson <= 0 {
		meta.TimePerPerson = queue.TimePerPerson
	}
	if err := s.store.UpdateQueueMeta(ctx, queueID, meta); err != nil {
		return nil, err
	}

	s.refresh(ctx, "update_queue")
	return s.store.QueueByID(ctx, queueID)
}

// QueueByID reads the authoritative queue record (used for host checks),
// not the snapshot.
func (s *QueueService) QueueByID(ctx context.Context, queueID string) (*models.Queue, error) {
	return s.store.QueueByID(ctx, queueID)
}

// Stats returns the host dashboard aggregation for a queue.
func (s *QueueService) Stats(ctx context.Context, queueID string) (*models.QueueStats, error) {
	return s.store.Stats(ctx, queueID)
}

func (s *QueueService) refresh(ctx context.Context, op string) {
	if s.engine == nil {
		return
	}
	if err := s.engine.Refresh(ctx, false); err != nil {
		// The mutation succeeded; a stale snapshot here is recoverable and
		// will be fixed by the change-feed refresh.
		slog.Warn("post-mutation refresh failed", "operation", op, "error", err)
	}
}
