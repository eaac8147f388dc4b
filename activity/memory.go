package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is a thread-safe in-process Log with a bounded history.
type MemoryLog struct {
	mu      sync.RWMutex
	history []Event
	maxHist int
	now     func() time.Time
}

// NewMemoryLog creates a MemoryLog with a 1000-event history cap.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{maxHist: 1000, now: time.Now}
}

// Append stores e. The oldest events fall off once the cap is reached.
func (l *MemoryLog) Append(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, *e)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	return nil
}

// List returns matching events, most recent first.
func (l *MemoryLog) List(filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]Event, 0, limit)
	for _, e := range l.history {
		if filter.Agent != "" && e.Agent != filter.Agent {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		matched = append(matched, e)
	}
	// Stable so same-instant events keep newest-appended first after reversal.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ForTask returns the history of one task in chronological order.
func (l *MemoryLog) ForTask(taskID string) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.history {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteForTask removes every event recorded against taskID.
func (l *MemoryLog) DeleteForTask(taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.history[:0]
	for _, e := range l.history {
		if e.TaskID != taskID {
			kept = append(kept, e)
		}
	}
	l.history = kept
	return nil
}
