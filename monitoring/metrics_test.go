package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"queueline/models"
)

type stubSource struct {
	snap models.Snapshot
}

func (s *stubSource) Snapshot() models.Snapshot { return s.snap }

func TestMonitor_Collect(t *testing.T) {
	src := &stubSource{snap: models.Snapshot{
		Seq: 42,
		Queues: []models.Queue{
			{ID: "AAA222", People: []models.Member{{ID: "m1"}, {ID: "m2"}}},
			{ID: "BBB333", People: []models.Member{}},
		},
	}}
	m := NewMonitor(src, nil, time.Second)

	m.collect()

	assert.Equal(t, float64(2), testutil.ToFloat64(activeQueues))
	assert.Equal(t, float64(42), testutil.ToFloat64(snapshotSeq))
	assert.Equal(t, float64(2), testutil.ToFloat64(waitingMembers.WithLabelValues("AAA222")))
	assert.Equal(t, float64(0), testutil.ToFloat64(waitingMembers.WithLabelValues("BBB333")))
}

func TestMonitor_Collect_DropsEndedQueueGauge(t *testing.T) {
	src := &stubSource{snap: models.Snapshot{
		Seq:    1,
		Queues: []models.Queue{{ID: "GONE44", People: []models.Member{{ID: "m1"}}}},
	}}
	m := NewMonitor(src, nil, time.Second)
	m.collect()
	assert.True(t, m.seen["GONE44"])

	src.snap = models.Snapshot{Seq: 2}
	m.collect()

	assert.False(t, m.seen["GONE44"])
	assert.Equal(t, float64(0), testutil.ToFloat64(activeQueues))
}

func TestTrackOperation(t *testing.T) {
	before := testutil.ToFloat64(queueOperations.WithLabelValues("test_op", "ok"))
	TrackOperation("test_op", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(queueOperations.WithLabelValues("test_op", "ok")))
}
