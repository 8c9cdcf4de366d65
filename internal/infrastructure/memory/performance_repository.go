package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
)

// PerformanceRepository は公演リポジトリのインメモリ実装
type PerformanceRepository struct {
	store *Store
}

func NewPerformanceRepository(store *Store) *PerformanceRepository {
	return &PerformanceRepository{store: store}
}

func (r *PerformanceRepository) Create(ctx context.Context, p *performance.Performance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Audit = audit.Created("", r.store.clock.Now())
	r.store.performances[p.ID] = p
	return nil
}

func (r *PerformanceRepository) GetByID(ctx context.Context, id string) (*performance.Performance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.performances[id]
	if !ok {
		return nil, performance.ErrPerformanceNotFound
	}
	return p, nil
}

func (r *PerformanceRepository) ListByVenue(ctx context.Context, venueID string, limit, offset int) ([]*performance.Performance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*performance.Performance
	for _, p := range r.store.performances {
		if p.VenueID == venueID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, limit, offset), nil
}

var _ performance.Repository = (*PerformanceRepository)(nil)
