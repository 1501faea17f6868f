package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queueline/internal/identity"
	"queueline/internal/services"
)

// ViewerHandler serves the read side: the snapshot, per-queue rosters and
// the caller's own place in line. Everything here is a projection of the
// sync engine's snapshot; nothing hits the store on the hot path except
// resolving the caller's membership.
type ViewerHandler struct {
	app    *pocketbase.PocketBase
	engine *services.SyncEngine
}

func NewViewerHandler(app *pocketbase.PocketBase, engine *services.SyncEngine) *ViewerHandler {
	return &ViewerHandler{app: app, engine: engine}
}

func (h *ViewerHandler) ListQueues(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	snap := h.engine.Snapshot()

	resp := map[string]any{
		"seq":        snap.Seq,
		"fetched_at": snap.FetchedAt,
		"queues":     snap.Queues,
	}
	if hosted := snap.HostQueue(sess.UserID); hosted != nil {
		resp["active_host_queue"] = hosted
	}
	return e.JSON(http.StatusOK, resp)
}

func (h *ViewerHandler) GetQueue(e *core.RequestEvent) error {
	if _, ok := identity.FromRequestEvent(e); !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	queueID := e.Request.PathValue("queueId")

	snap := h.engine.Snapshot()
	queue := snap.QueueByID(queueID)
	if queue == nil {
		return apis.NewNotFoundError("Queue not found or no longer active.", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"queue":  queue,
		"roster": queue.Roster(),
		"share": map[string]string{
			"code": queue.ID,
			"hint": "Join with code " + queue.ID,
		},
	})
}

// GetViewerState returns the caller's current queue, member record,
// 1-based position and wait estimate: the reactive values a client screen
// binds to.
func (h *ViewerHandler) GetViewerState(e *core.RequestEvent) error {
	sess, ok := identity.FromRequestEvent(e)
	if !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	vs := h.engine.ViewerState(e.Request.Context(), sess.UserID)
	return e.JSON(http.StatusOK, vs)
}
