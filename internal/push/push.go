// Package push delivers queue updates to per-user client channels.
package push

import (
	"log/slog"

	pubnub "github.com/pubnub/go"
)

// Publisher fans queue updates out to clients. Implementations must never
// block the sync path; delivery is best effort on top of the client's own
// re-fetch loop.
type Publisher interface {
	PositionChanged(userID string, queueID string, position, waitMinutes int)
	QueueEnded(userID string, queueID string)
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func userChannel(userID string) string {
	return "user-" + userID
}

func (p *PubNubPublisher) PositionChanged(userID, queueID string, position, waitMinutes int) {
	_, status, err := p.pn.Publish().
		Channel(userChannel(userID)).
		Message(map[string]any{
			"type":         "queue_position",
			"queue_id":     queueID,
			"position":     position,
			"wait_minutes": waitMinutes,
		}).
		Execute()
	if err != nil {
		slog.Warn("push: position publish failed", "user", userID, "status", status.StatusCode, "error", err)
	}
}

func (p *PubNubPublisher) QueueEnded(userID, queueID string) {
	_, status, err := p.pn.Publish().
		Channel(userChannel(userID)).
		Message(map[string]any{
			"type":     "queue_ended",
			"queue_id": queueID,
		}).
		Execute()
	if err != nil {
		slog.Warn("push: queue-ended publish failed", "user", userID, "status", status.StatusCode, "error", err)
	}
}

// NopPublisher drops all updates. Used when PubNub keys are not configured
// and in tests.
type NopPublisher struct{}

func (NopPublisher) PositionChanged(string, string, int, int) {}
func (NopPublisher) QueueEnded(string, string)                {}
