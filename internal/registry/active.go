package registry

import (
	"sort"
	"sync"
	"time"

	"otpmarket/internal/model"
)

// Entry is a lightweight snapshot of an in-flight order.
type Entry struct {
	OrderID       string            `json:"order_id"`
	UserID        string            `json:"user_id"`
	Provider      model.Provider    `json:"provider"`
	Phone         string            `json:"phone"`
	Status        model.OrderStatus `json:"status"`
	LastCheckedAt time.Time         `json:"last_checked_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

// Active indexes in-flight orders for cheap dashboards and open-order
// counts. It is a cache, never a source of truth: it starts empty on every
// boot and is repopulated as orders are touched, and correctness-critical
// reads (ownership, status) always go to the order store instead.
type Active struct {
	mu      sync.RWMutex
	entries map[string]Entry
	grace   time.Duration
}

// New builds a registry whose entries outlive their provider expiry by at
// most grace before eviction reclaims them.
func New(grace time.Duration) *Active {
	return &Active{
		entries: make(map[string]Entry),
		grace:   grace,
	}
}

func (a *Active) Add(e Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.LastCheckedAt = time.Now()
	a.entries[e.OrderID] = e
}

// Touch refreshes the cached status and poll time of a known order. Unknown
// ids are ignored; the registry repopulates through Add only.
func (a *Active) Touch(orderID string, status model.OrderStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[orderID]
	if !ok {
		return
	}
	e.Status = status
	e.LastCheckedAt = time.Now()
	a.entries[orderID] = e
}

func (a *Active) Remove(orderID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, orderID)
}

func (a *Active) Get(orderID string) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[orderID]
	return e, ok
}

func (a *Active) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

func (a *Active) Snapshot() []Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OrderID < entries[j].OrderID })
	return entries
}

// Evict drops entries whose provider expiry plus grace has passed, bounding
// registry growth across long-running processes. Entries without a known
// expiry are kept. Returns the number of evicted entries.
func (a *Active) Evict(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	evicted := 0
	for id, e := range a.entries {
		if e.ExpiresAt.IsZero() {
			continue
		}
		if now.After(e.ExpiresAt.Add(a.grace)) {
			delete(a.entries, id)
			evicted++
		}
	}
	return evicted
}
