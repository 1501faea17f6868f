package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queueline/internal/identity"
	"queueline/internal/services"
	"queueline/internal/status"
	"queueline/internal/store"
)

type QueueHandler struct {
	app    *pocketbase.PocketBase
	queues *services.QueueService
	engine *services.SyncEngine
}

func NewQueueHandler(app *pocketbase.PocketBase, queues *services.QueueService, engine *services.SyncEngine) *QueueHandler {
	return &QueueHandler{
		app:    app,
		queues: queues,
		engine: engine,
	}
}

// apiError translates service errors into HTTP responses: validation errors
// are 4xx with the human-readable reason, everything else is a 500 that
// keeps the cause out of the client payload.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrQueueNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrNotHost):
		return apis.NewForbiddenError(err.Error(), nil)
	case errors.Is(err, status.ErrQueueInactive),
		errors.Is(err, status.ErrEmptyName),
		errors.Is(err, status.ErrNameTaken),
		errors.Is(err, status.ErrAlreadyInQueue),
		errors.Is(err, status.ErrCodeExhausted):
		return apis.NewBadRequestError(err.Error(), nil)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong, please try again.", err)
	}
}

// requireHost loads the queue and verifies the caller owns it.
func (h *QueueHandler) requireHost(e *core.RequestEvent, queueID, callerID string) error {
	queue, err := h.queues.QueueByID(e.Request.Context(), queueID)
	if err != nil {
		return apiError(err)
	}
	if queue == nil {
		return apiError(status.ErrQueueNotFound)
	}
	if queue.HostUserID != callerID {
		return apiError(status.ErrNotHost)
	}
	return nil
}

func (h *QueueHandler) CreateQueue(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.CreateQueueInput
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	queue, err := h.queues.CreateQueue(e.Request.Context(), sess.UserID, req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, queue)
}

func (h *QueueHandler) UpdateQueue(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")
	if err := h.requireHost(e, queueID, sess.UserID); err != nil {
		return err
	}

	var req struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		Location      string `json:"location"`
		TimePerPerson int    `json:"time_per_person"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	queue, err := h.queues.UpdateQueue(e.Request.Context(), queueID, store.QueueMeta{
		Name:          req.Name,
		Description:   req.Description,
		Location:      req.Location,
		TimePerPerson: req.TimePerPerson,
	})
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, queue)
}

func (h *QueueHandler) JoinQueue(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")

	var req struct {
		Name        string `json:"name"`
		ContactInfo string `json:"contact_info"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	member, err := h.queues.JoinQueue(e.Request.Context(), sess.UserID, queueID, req.Name, req.ContactInfo)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, member)
}

func (h *QueueHandler) CallNext(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")
	if err := h.requireHost(e, queueID, sess.UserID); err != nil {
		return err
	}

	member, err := h.queues.CallNext(e.Request.Context(), queueID)
	if err != nil {
		return apiError(err)
	}
	if member == nil {
		return e.JSON(http.StatusOK, map[string]any{"served": nil, "empty": true})
	}
	return e.JSON(http.StatusOK, map[string]any{"served": member, "empty": false})
}

func (h *QueueHandler) RemovePerson(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")
	memberID := e.Request.PathValue("memberId")
	if err := h.requireHost(e, queueID, sess.UserID); err != nil {
		return err
	}

	if err := h.queues.RemovePerson(e.Request.Context(), queueID, memberID); err != nil {
		return apiError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *QueueHandler) LeaveQueue(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")

	var req struct {
		MemberID string `json:"member_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	// Only the member themselves may leave; hosts use remove.
	member, err := h.queues.MemberByID(e.Request.Context(), queueID, req.MemberID)
	if err != nil {
		return apiError(err)
	}
	if member != nil && member.UserID != sess.UserID {
		return apis.NewForbiddenError("You can only leave your own spot.", nil)
	}

	if err := h.queues.LeaveQueue(e.Request.Context(), queueID, req.MemberID); err != nil {
		return apiError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *QueueHandler) LeaveCurrentQueue(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if err := h.queues.LeaveCurrentQueue(e.Request.Context(), sess.UserID); err != nil {
		return apiError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *QueueHandler) EndQueue(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")
	if err := h.requireHost(e, queueID, sess.UserID); err != nil {
		return err
	}

	if err := h.queues.EndQueue(e.Request.Context(), queueID); err != nil {
		return apiError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *QueueHandler) GetStats(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")
	if err := h.requireHost(e, queueID, sess.UserID); err != nil {
		return err
	}

	stats, err := h.queues.Stats(e.Request.Context(), queueID)
	if err != nil {
		return apiError(err)
	}
	if stats == nil {
		return apiError(status.ErrQueueNotFound)
	}
	return e.JSON(http.StatusOK, stats)
}
