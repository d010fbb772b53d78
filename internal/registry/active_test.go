package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpmarket/internal/model"
)

func TestAddGetRemove(t *testing.T) {
	a := New(time.Minute)

	a.Add(Entry{OrderID: "100", UserID: "u1", Provider: model.ProviderFiveSim, Phone: "+79991112233", Status: model.StatusPending})

	e, ok := a.Get("100")
	require.True(t, ok)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, model.StatusPending, e.Status)
	assert.False(t, e.LastCheckedAt.IsZero(), "Add must stamp LastCheckedAt")

	a.Remove("100")
	_, ok = a.Get("100")
	assert.False(t, ok)
	assert.Equal(t, 0, a.Len())
}

func TestTouch(t *testing.T) {
	a := New(time.Minute)
	a.Add(Entry{OrderID: "100", Status: model.StatusPending})

	a.Touch("100", model.StatusWaiting)
	e, ok := a.Get("100")
	require.True(t, ok)
	assert.Equal(t, model.StatusWaiting, e.Status)

	// unknown ids are ignored, not created
	a.Touch("missing", model.StatusWaiting)
	_, ok = a.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, a.Len())
}

func TestSnapshotSorted(t *testing.T) {
	a := New(time.Minute)
	a.Add(Entry{OrderID: "300"})
	a.Add(Entry{OrderID: "100"})
	a.Add(Entry{OrderID: "200"})

	snap := a.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "100", snap[0].OrderID)
	assert.Equal(t, "200", snap[1].OrderID)
	assert.Equal(t, "300", snap[2].OrderID)
}

func TestEvict(t *testing.T) {
	now := time.Now()
	a := New(time.Minute)

	a.Add(Entry{OrderID: "fresh", ExpiresAt: now.Add(10 * time.Minute)})
	a.Add(Entry{OrderID: "stale", ExpiresAt: now.Add(-2 * time.Minute)})
	a.Add(Entry{OrderID: "in-grace", ExpiresAt: now.Add(-30 * time.Second)})
	a.Add(Entry{OrderID: "no-expiry"})

	evicted := a.Evict(now)
	assert.Equal(t, 1, evicted)

	_, ok := a.Get("stale")
	assert.False(t, ok)
	for _, id := range []string{"fresh", "in-grace", "no-expiry"} {
		_, ok := a.Get(id)
		assert.True(t, ok, "entry %s must survive eviction", id)
	}
}

func TestConcurrentAccess(t *testing.T) {
	a := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("order-%d", i)
			a.Add(Entry{OrderID: id, Status: model.StatusPending})
			a.Touch(id, model.StatusWaiting)
			a.Get(id)
			a.Snapshot()
			if i%2 == 0 {
				a.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, a.Len())
}
