package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemberStatus_ValidStatuses(t *testing.T) {
	valid := []string{"waiting", "served", "removed", "left", "closed"}

	for _, raw := range valid {
		st, err := ParseMemberStatus(raw)
		require.NoError(t, err)
		assert.Equal(t, MemberStatus(raw), st)
	}
}

func TestParseMemberStatus_Invalid(t *testing.T) {
	for _, raw := range []string{"", "WAITING", "done", "serving"} {
		_, err := ParseMemberStatus(raw)
		assert.Error(t, err, "status %q should be rejected", raw)
	}
}

func TestMemberStatus_Terminal(t *testing.T) {
	assert.False(t, StatusWaiting.Terminal())
	assert.True(t, StatusServed.Terminal())
	assert.True(t, StatusRemoved.Terminal())
	assert.True(t, StatusLeft.Terminal())
	assert.True(t, StatusClosed.Terminal())
}

func testQueue(timePerPerson int, memberIDs ...string) Queue {
	q := Queue{
		ID:            "ABC234",
		HostUserID:    "host-1",
		Name:          "Test Line",
		TimePerPerson: timePerPerson,
		IsActive:      true,
		CreatedAt:     time.Now(),
		People:        []Member{},
	}
	base := time.Now().Add(-time.Hour)
	for i, id := range memberIDs {
		q.People = append(q.People, Member{
			ID:          id,
			QueueID:     q.ID,
			UserID:      "user-" + id,
			DisplayName: "Person " + id,
			JoinedAt:    base.Add(time.Duration(i) * time.Minute),
			Status:      StatusWaiting,
		})
	}
	return q
}

func TestQueue_PositionOf(t *testing.T) {
	q := testQueue(5, "m1", "m2", "m3")

	assert.Equal(t, 1, q.PositionOf("m1"))
	assert.Equal(t, 2, q.PositionOf("m2"))
	assert.Equal(t, 3, q.PositionOf("m3"))
	assert.Equal(t, 0, q.PositionOf("missing"))
}

func TestQueue_PositionOf_EmptyQueue(t *testing.T) {
	q := testQueue(5)
	assert.Equal(t, 0, q.PositionOf("anyone"))
}

func TestQueue_EstimatedWaitMinutes(t *testing.T) {
	q := testQueue(10, "m1", "m2", "m3")

	assert.Equal(t, 0, q.EstimatedWaitMinutes(1))
	assert.Equal(t, 10, q.EstimatedWaitMinutes(2))
	assert.Equal(t, 20, q.EstimatedWaitMinutes(3))
	// 0 means "not in line"; never a negative wait.
	assert.Equal(t, 0, q.EstimatedWaitMinutes(0))
	assert.Equal(t, 0, q.EstimatedWaitMinutes(-4))
}

func TestQueue_RosterMatchesPositions(t *testing.T) {
	q := testQueue(5, "m1", "m2", "m3")

	roster := q.Roster()
	require.Len(t, roster, 3)
	for i, m := range roster {
		assert.Equal(t, i+1, q.PositionOf(m.ID))
	}
}

// Two people join, the host serves one, and both views stay consistent:
// the roster shrinks and the remaining person moves up.
func TestQueue_ServeFrontAdvancesPositions(t *testing.T) {
	q := testQueue(5, "alice", "bob")

	require.Equal(t, 1, q.PositionOf("alice"))
	require.Equal(t, 2, q.PositionOf("bob"))

	// The refresh after call-next rebuilds People without the served member.
	q.People = q.People[1:]

	assert.Equal(t, 0, q.PositionOf("alice"))
	assert.Equal(t, 1, q.PositionOf("bob"))
	assert.Equal(t, 0, q.EstimatedWaitMinutes(q.PositionOf("bob")))
	assert.Len(t, q.Roster(), 1)
}

func TestSnapshot_QueueByID(t *testing.T) {
	snap := Snapshot{
		Seq:    3,
		Queues: []Queue{testQueue(5, "m1"), {ID: "XYZ789", HostUserID: "host-2"}},
	}

	q := snap.QueueByID("XYZ789")
	require.NotNil(t, q)
	assert.Equal(t, "host-2", q.HostUserID)

	assert.Nil(t, snap.QueueByID("nope"))
}

func TestSnapshot_HostQueue(t *testing.T) {
	snap := Snapshot{
		Queues: []Queue{testQueue(5), {ID: "XYZ789", HostUserID: "host-2"}},
	}

	q := snap.HostQueue("host-2")
	require.NotNil(t, q)
	assert.Equal(t, "XYZ789", q.ID)

	assert.Nil(t, snap.HostQueue("stranger"))
}

func makeSnapshot() Snapshot {
	return Snapshot{
		Seq:    9,
		Queues: []Queue{{ID: "XYZ789", HostUserID: "host-2"}},
	}
}

func TestSnapshot_LookupOnReturnedValue(t *testing.T) {
	// Readers chain lookups straight off a returned snapshot; both methods
	// must be callable on the value itself.
	q := makeSnapshot().QueueByID("XYZ789")
	require.NotNil(t, q)
	assert.Equal(t, "host-2", q.HostUserID)

	hosted := makeSnapshot().HostQueue("host-2")
	require.NotNil(t, hosted)
	assert.Equal(t, "XYZ789", hosted.ID)
}

func TestMember_JSONRoundTrip(t *testing.T) {
	m := Member{
		ID:          "member-1",
		QueueID:     "ABC234",
		UserID:      "user-1",
		DisplayName: "Alice",
		ContactInfo: "alice@example.com",
		JoinedAt:    time.Now(),
		Status:      StatusWaiting,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got Member
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Status, got.Status)
	assert.WithinDuration(t, m.JoinedAt, got.JoinedAt, time.Second)
}

func TestViewerState_NotInLine(t *testing.T) {
	vs := ViewerState{SnapshotSeq: 7}

	data, err := json.Marshal(vs)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got["current_queue"])
	assert.Nil(t, got["current_member"])
	assert.Equal(t, float64(0), got["position"])
}
