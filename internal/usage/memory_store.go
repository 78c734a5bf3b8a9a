package usage

import (
	"context"
	"sort"
	"sync"
)

// MemoryTracker is an in-memory Tracker for demo/development. State does not
// survive a restart, so it only satisfies the durability requirement when
// paired with a single long-lived process.
type MemoryTracker struct {
	records sync.Map // "tenant\x00period" → *memRecord
}

type memRecord struct {
	mu    sync.Mutex
	count int64
}

// NewMemoryTracker creates a new in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{}
}

func recordKey(tenantID string, period Period) string {
	return tenantID + "\x00" + string(period)
}

func (m *MemoryTracker) record(tenantID string, period Period) *memRecord {
	v, _ := m.records.LoadOrStore(recordKey(tenantID, period), &memRecord{})
	return v.(*memRecord)
}

func (m *MemoryTracker) Reserve(_ context.Context, tenantID string, period Period, quota int64) (int64, error) {
	r := m.record(tenantID, period)
	r.mu.Lock()
	defer r.mu.Unlock()

	if quota <= 0 {
		r.count++
		return Unbounded, nil
	}
	if r.count >= quota {
		return 0, ErrQuotaExceeded
	}
	r.count++
	return quota - r.count, nil
}

func (m *MemoryTracker) Release(_ context.Context, tenantID string, period Period) error {
	r := m.record(tenantID, period)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count > 0 {
		r.count--
	}
	return nil
}

func (m *MemoryTracker) Count(_ context.Context, tenantID string, period Period) (int64, error) {
	v, ok := m.records.Load(recordKey(tenantID, period))
	if !ok {
		return 0, nil
	}
	r := v.(*memRecord)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, nil
}

func (m *MemoryTracker) History(_ context.Context, tenantID string, limit int) ([]Record, error) {
	var out []Record
	m.records.Range(func(key, v any) bool {
		k := key.(string)
		if len(k) > len(tenantID) && k[:len(tenantID)] == tenantID && k[len(tenantID)] == 0 {
			period := Period(k[len(tenantID)+1:])
			r := v.(*memRecord)
			r.mu.Lock()
			count := r.count
			r.mu.Unlock()
			out = append(out, Record{
				TenantID:    tenantID,
				Period:      period,
				PeriodStart: period.Start(),
				Count:       count,
			})
		}
		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Tracker = (*MemoryTracker)(nil)
