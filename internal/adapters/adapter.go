package adapters

import (
	"sync"
	"sync/atomic"
	"time"
)

// HealthReporter is implemented by every outbound collaborator client so the
// status server can report on them uniformly.
type HealthReporter interface {
	// Name returns the collaborator identifier (e.g. "dexscreener", "rugcheck").
	Name() string

	// Health returns a point-in-time view of the client.
	Health() HealthStatus
}

// HealthStatus represents the health of an external service connection.
type HealthStatus struct {
	Name        string `json:"name"`
	Requests    int64  `json:"requests"`
	Errors      int64  `json:"errors"`
	LastSuccess int64  `json:"last_success,omitempty"` // unix ms
	LastError   string `json:"last_error,omitempty"`
	State       string `json:"state"` // healthy|degraded|open
}

// Counters tracks request outcomes for a client. Embed it and call
// RecordSuccess / RecordError around every outbound call.
type Counters struct {
	requests atomic.Int64
	errors   atomic.Int64
	lastOK   atomic.Int64
	lastFail atomic.Int64

	mu      sync.Mutex
	lastErr string
}

// RecordSuccess counts a successful call.
func (c *Counters) RecordSuccess() {
	c.requests.Add(1)
	c.lastOK.Store(time.Now().UnixNano())
}

// RecordError counts a failed call and remembers its message.
func (c *Counters) RecordError(err error) {
	c.requests.Add(1)
	c.errors.Add(1)
	c.lastFail.Store(time.Now().UnixNano())
	if err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
	}
}

// Snapshot builds a HealthStatus. An empty state is derived from the counts:
// degraded when the most recent call failed.
func (c *Counters) Snapshot(name, state string) HealthStatus {
	c.mu.Lock()
	lastErr := c.lastErr
	c.mu.Unlock()

	hs := HealthStatus{
		Name:        name,
		Requests:    c.requests.Load(),
		Errors:      c.errors.Load(),
		LastSuccess: c.lastOK.Load() / int64(time.Millisecond),
		LastError:   lastErr,
		State:       state,
	}
	if hs.State == "" {
		hs.State = "healthy"
		if c.lastFail.Load() > c.lastOK.Load() {
			hs.State = "degraded"
		}
	}
	return hs
}
