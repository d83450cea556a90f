// Package archive keeps the nightly daily summaries.
package archive

import (
	"context"
	"sort"
	"sync"

	"vansales/internal/report"
)

// DefaultLimit is the number of summaries listed when no limit is given.
const DefaultLimit = 30

// Archive stores one summary per date. Saving a date again replaces it.
type Archive interface {
	Save(ctx context.Context, s report.DailySummary) error
	// List returns up to limit summaries, newest date first.
	List(ctx context.Context, limit int) ([]report.DailySummary, error)
}

// Memory is an in-process Archive used when no database is configured.
type Memory struct {
	mu    sync.Mutex
	items map[string]report.DailySummary
}

var _ Archive = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{items: make(map[string]report.DailySummary)}
}

func (m *Memory) Save(_ context.Context, s report.DailySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.Date] = s
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]report.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]report.DailySummary, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out[:NormalizeLimit(limit, len(out))], nil
}

// NormalizeLimit clamps limit to [1, n], using DefaultLimit when limit is not
// positive.
func NormalizeLimit(limit, n int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > n {
		return n
	}
	return limit
}
