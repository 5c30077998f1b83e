package brokers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository defines broker storage plus the visit aggregates the
// dashboard shows next to each broker.
type Repository interface {
	// Create inserts the broker and fills ID and timestamps.
	// ErrPhoneTaken when the phone is already registered.
	Create(ctx context.Context, b *Broker) error
	GetByID(ctx context.Context, id int64) (*Broker, error)
	// List returns a page of brokers and the unpaged total.
	List(ctx context.Context, f ListFilter) ([]Broker, int, error)
	// Update persists the broker's mutable fields.
	// ErrPhoneTaken when the new phone belongs to another broker.
	Update(ctx context.Context, b *Broker) error
	// Deactivate soft-deletes the broker.
	Deactivate(ctx context.Context, id int64) error
	// Stats aggregates the broker's visits.
	Stats(ctx context.Context, id int64) (Stats, error)
	// Ranking orders active brokers by visits completed since the cutoff.
	Ranking(ctx context.Context, since time.Time) ([]RankingEntry, error)
}

// InMemoryRepository keeps brokers in a map, for tests and local runs.
// Visit aggregates are always zero.
type InMemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	brokers map[int64]*Broker
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{brokers: make(map[int64]*Broker)}
}

func (r *InMemoryRepository) Create(ctx context.Context, b *Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.brokers {
		if existing.Phone == b.Phone {
			return ErrPhoneTaken
		}
	}
	r.nextID++
	b.ID = r.nextID
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	r.brokers[b.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int64) (*Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brokers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *InMemoryRepository) List(ctx context.Context, f ListFilter) ([]Broker, int, error) {
	f.Normalize()
	r.mu.RLock()
	var all []Broker
	for _, b := range r.brokers {
		if !matchesFilter(b, f) {
			continue
		}
		all = append(all, *b)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, b *Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.brokers[b.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range r.brokers {
		if id != b.ID && other.Phone == b.Phone {
			return ErrPhoneTaken
		}
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now()
	cp := *b
	r.brokers[b.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.brokers[id]
	if !ok {
		return ErrNotFound
	}
	b.Active = false
	b.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) Stats(ctx context.Context, id int64) (Stats, error) {
	return Stats{}, nil
}

func (r *InMemoryRepository) Ranking(ctx context.Context, since time.Time) ([]RankingEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RankingEntry
	for _, b := range r.brokers {
		if !b.Active {
			continue
		}
		out = append(out, RankingEntry{ID: b.ID, Name: b.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func matchesFilter(b *Broker, f ListFilter) bool {
	switch f.Status {
	case "active":
		if !b.Active {
			return false
		}
	case "inactive":
		if b.Active {
			return false
		}
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, hay := range []string{b.Name, b.Email, b.Phone, b.CRECI} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
