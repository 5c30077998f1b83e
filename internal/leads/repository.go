package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines landing-lead storage.
type Repository interface {
	// Create inserts the lead and fills its ID and RegisteredAt.
	Create(ctx context.Context, l *Lead) error
	GetByID(ctx context.Context, id int64) (*Lead, error)
	// FindOpenByPhone returns the newest pending or contacted lead for a
	// phone, or ErrNotFound.
	FindOpenByPhone(ctx context.Context, phone string) (*Lead, error)
	// UpdateStatus moves a lead through its lifecycle, stamping the
	// matching timestamp column.
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	// List returns every lead, newest first.
	List(ctx context.Context) ([]Lead, error)
}

// InMemoryRepository keeps leads in a map, for tests and local runs.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	leads  map[int64]*Lead
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{leads: make(map[int64]*Lead)}
}

func (r *InMemoryRepository) Create(ctx context.Context, l *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	if l.RegisteredAt.IsZero() {
		l.RegisteredAt = time.Now()
	}
	cp := *l
	r.leads[l.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *InMemoryRepository) FindOpenByPhone(ctx context.Context, phone string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Lead
	for _, l := range r.leads {
		if l.Phone != phone {
			continue
		}
		if l.Status != StatusPending && l.Status != StatusContacted {
			continue
		}
		if best == nil || l.RegisteredAt.After(best.RegisteredAt) {
			best = l
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	switch status {
	case StatusContacted:
		t := at
		l.ContactedAt = &t
	case StatusInConversation:
		t := at
		l.FirstMessageAt = &t
	}
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lead, 0, len(r.leads))
	for _, l := range r.leads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	return out, nil
}
