package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"queueline/models"
	"queueline/utils"
)

var (
	waitingMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queueline_waiting_members",
			Help: "Current number of waiting members per queue",
		},
		[]string{"queue_id"},
	)

	activeQueues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queueline_active_queues",
			Help: "Number of active queues in the current snapshot",
		},
	)

	snapshotSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queueline_snapshot_seq",
			Help: "Sequence number of the applied snapshot",
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queueline_operations_total",
			Help: "Total queue operations by outcome",
		},
		[]string{"operation", "result"},
	)

	refreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queueline_refresh_duration_seconds",
			Help:    "Duration of snapshot refreshes",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"result"},
	)

	lookupBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queueline_lookup_breaker_state",
			Help: "Address lookup circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

// TrackOperation counts one mutation outcome.
func TrackOperation(operation, result string) {
	queueOperations.WithLabelValues(operation, result).Inc()
}

// ObserveRefresh records one snapshot refresh.
func ObserveRefresh(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	refreshDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SnapshotSource is anything that can hand out the current snapshot; in
// practice the sync engine.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

type Monitor struct {
	source   SnapshotSource
	breaker  *utils.CircuitBreaker
	interval time.Duration

	seen map[string]bool
}

func NewMonitor(source SnapshotSource, breaker *utils.CircuitBreaker, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		source:   source,
		breaker:  breaker,
		interval: interval,
		seen:     map[string]bool{},
	}
}

// Run samples the snapshot on a ticker until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Monitor) collect() {
	snap := m.source.Snapshot()

	activeQueues.Set(float64(len(snap.Queues)))
	snapshotSeq.Set(float64(snap.Seq))

	current := map[string]bool{}
	for i := range snap.Queues {
		q := &snap.Queues[i]
		current[q.ID] = true
		m.seen[q.ID] = true
		waitingMembers.WithLabelValues(q.ID).Set(float64(len(q.People)))
	}
	// Ended queues keep a stale gauge forever otherwise.
	for id := range m.seen {
		if !current[id] {
			waitingMembers.DeleteLabelValues(id)
			delete(m.seen, id)
		}
	}

	if m.breaker != nil {
		lookupBreakerState.Set(float64(m.breaker.State()))
	}
}
