package identity

import (
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequestEvent_NoAuth(t *testing.T) {
	e := &core.RequestEvent{}

	_, ok := FromRequestEvent(e)
	assert.False(t, ok)
}

func TestFromRequestEvent_AuthenticatedUser(t *testing.T) {
	record := core.NewRecord(core.NewAuthCollection("users"))
	record.Id = "u1"
	record.SetEmail("u1@example.com")

	e := &core.RequestEvent{Auth: record}

	sess, ok := FromRequestEvent(e)
	require.True(t, ok)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "u1@example.com", sess.Email)
}
