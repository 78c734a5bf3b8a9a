package tenant

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory tenant store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant // by ID
	emails  map[string]string  // email → ID
	plans   map[string]Plan
}

// NewMemoryStore creates a new in-memory tenant store seeded with the
// built-in plan catalogue.
func NewMemoryStore() *MemoryStore {
	plans := make(map[string]Plan, len(DefaultPlans))
	for id, p := range DefaultPlans {
		plans[id] = p
	}
	return &MemoryStore{
		tenants: make(map[string]*Tenant),
		emails:  make(map[string]string),
		plans:   plans,
	}
}

func (m *MemoryStore) Create(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(t.Email)
	if _, exists := m.emails[email]; exists {
		return ErrEmailTaken
	}
	if _, ok := m.plans[t.PlanID]; !ok {
		return ErrPlanNotFound
	}

	cp := *t
	m.tenants[t.ID] = &cp
	m.emails[email] = t.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *m.tenants[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[t.ID]; !ok {
		return ErrTenantNotFound
	}
	if _, ok := m.plans[t.PlanID]; !ok {
		return ErrPlanNotFound
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetPlan(_ context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := p
	return &cp, nil
}

// SeedPlan adds or replaces a plan in the in-memory catalogue (used by
// handlers in demo mode and by tests that need bespoke limits).
func (m *MemoryStore) SeedPlan(p Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

var _ Store = (*MemoryStore)(nil)
