package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queueline/internal/identity"
	"queueline/internal/services"
	"queueline/utils"
)

type LocationHandler struct {
	app       *pocketbase.PocketBase
	locations *services.LocationService
}

func NewLocationHandler(app *pocketbase.PocketBase, locations *services.LocationService) *LocationHandler {
	return &LocationHandler{app: app, locations: locations}
}

// Search proxies the address lookup. Clients debounce keystrokes; the
// request context carries their cancellation, so an abandoned keystroke
// cancels the upstream call too. An open breaker degrades to an empty list.
func (h *LocationHandler) Search(e *core.RequestEvent) error {
	if _, ok := identity.FromRequestEvent(e); !ok {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	query := e.Request.URL.Query().Get("q")

	suggestions, err := h.locations.Search(e.Request.Context(), query)
	if err != nil {
		if errors.Is(err, utils.ErrBreakerOpen) {
			return e.JSON(http.StatusOK, map[string]any{"suggestions": []any{}, "degraded": true})
		}
		return apis.NewApiError(http.StatusBadGateway, "Address lookup is unavailable.", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"suggestions": suggestions})
}
