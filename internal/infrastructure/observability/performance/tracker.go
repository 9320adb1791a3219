package performance

import (
	"sort"
	"sync"
	"time"
)

// Tracker keeps a bounded window of completed markers and aggregates them
// per operation.
type Tracker struct {
	completed []*Marker
	next      int
	full      bool
	slow      time.Duration
	mu        sync.RWMutex
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers    int           `json:"maxMarkers"`
	SlowThreshold time.Duration `json:"slowThreshold"`
}

// DefaultTrackerConfig returns the production defaults
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:    2000,
		SlowThreshold: 500 * time.Millisecond,
	}
}

// OperationStats summarises the markers recorded for one operation.
type OperationStats struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Slow      int           `json:"slow"`
	Average   time.Duration `json:"average"`
	Max       time.Duration `json:"max"`
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	if config.MaxMarkers <= 0 {
		config.MaxMarkers = DefaultTrackerConfig().MaxMarkers
	}
	return &Tracker{
		completed: make([]*Marker, config.MaxMarkers),
		slow:      config.SlowThreshold,
	}
}

// StartOperation creates a marker that is recorded once Complete is called.
func (t *Tracker) StartOperation(operation, visitorID string) *Marker {
	return &Marker{
		Operation:  operation,
		VisitorID:  visitorID,
		StartTime:  time.Now(),
		Success:    true,
		onComplete: t.record,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[t.next] = m
	t.next = (t.next + 1) % len(t.completed)
	if t.next == 0 {
		t.full = true
	}
}

// Stats aggregates the retained markers per operation, sorted by name.
func (t *Tracker) Stats() []OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	limit := t.next
	if t.full {
		limit = len(t.completed)
	}

	byOp := make(map[string]*OperationStats)
	totals := make(map[string]time.Duration)
	for i := 0; i < limit; i++ {
		m := t.completed[i]
		if m == nil {
			continue
		}
		s, ok := byOp[m.Operation]
		if !ok {
			s = &OperationStats{Operation: m.Operation}
			byOp[m.Operation] = s
		}
		s.Count++
		if !m.Success {
			s.Failures++
		}
		if t.slow > 0 && m.Duration > t.slow {
			s.Slow++
		}
		if m.Duration > s.Max {
			s.Max = m.Duration
		}
		totals[m.Operation] += m.Duration
	}

	stats := make([]OperationStats, 0, len(byOp))
	for op, s := range byOp {
		s.Average = totals[op] / time.Duration(s.Count)
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Operation < stats[j].Operation })
	return stats
}
