package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueline/utils"
)

func TestLocationService_Search(t *testing.T) {
	var gotQuery, gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"place_id": 123, "display_name": "Main Street 1, Springfield", "lat": "52.52", "lon": "13.405"},
			{"place_id": 456, "display_name": "Main Street 2, Springfield", "lat": "48.8566", "lon": "2.3522"}
		]`))
	}))
	defer server.Close()

	svc := NewLocationService(server.URL, time.Second, 3, 5)

	suggestions, err := svc.Search(context.Background(), "Main Street")
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "Main Street", gotQuery)
	assert.Equal(t, "5", gotLimit)
	assert.Equal(t, "123", suggestions[0].ID)
	assert.Equal(t, "Main Street 1, Springfield", suggestions[0].Label)
	assert.InDelta(t, 52.52, suggestions[0].Latitude, 0.001)
	assert.InDelta(t, 13.405, suggestions[0].Longitude, 0.001)
}

func TestLocationService_Search_ShortQuerySkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	svc := NewLocationService(server.URL, time.Second, 3, 5)

	for _, q := range []string{"", "a", "ab", "  ab  "} {
		suggestions, err := svc.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, suggestions)
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestLocationService_Search_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewLocationService(server.URL, time.Second, 3, 5)

	_, err := svc.Search(context.Background(), "Main Street")
	assert.Error(t, err)
}

func TestLocationService_BreakerOpensOnFlappingUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewLocationService(server.URL, time.Second, 3, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Search(ctx, "Main Street")
		require.Error(t, err)
	}

	assert.Equal(t, utils.BreakerOpen, svc.Breaker().State())
	_, err := svc.Search(ctx, "Main Street")
	assert.ErrorIs(t, err, utils.ErrBreakerOpen)
}

// Debouncer Tests

func TestDebouncer_OnlyLastCallFires(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := i
		d.Do(context.Background(), func(ctx context.Context) {
			fired.Add(1)
			last.Store(int32(i))
		})
	}

	assert.Eventually(t, func() bool {
		return fired.Load() == 1 && last.Load() == 5
	}, time.Second, 5*time.Millisecond)

	// No straggler fires later.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDebouncer_StopDropsPendingCall(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Int32
	d.Do(context.Background(), func(ctx context.Context) {
		fired.Add(1)
	})
	d.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDebouncer_SupersededRunGetsCancelled(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	defer d.Stop()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	d.Do(context.Background(), func(ctx context.Context) {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
		case <-time.After(time.Second):
		}
	})

	<-started
	d.Do(context.Background(), func(ctx context.Context) {})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("superseding call did not cancel the running one")
	}
}
