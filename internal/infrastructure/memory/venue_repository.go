package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

// VenueRepository は会場リポジトリのインメモリ実装
type VenueRepository struct {
	store *Store
}

func NewVenueRepository(store *Store) *VenueRepository {
	return &VenueRepository{store: store}
}

func (r *VenueRepository) Create(ctx context.Context, v *venue.Venue) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Audit = audit.Created(v.BusinessUserID, r.store.clock.Now())
	r.store.venues[v.ID] = v
	return nil
}

func (r *VenueRepository) GetByID(ctx context.Context, id string) (*venue.Venue, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	v, ok := r.store.venues[id]
	if !ok {
		return nil, venue.ErrVenueNotFound
	}
	return v, nil
}

func (r *VenueRepository) ListByBusinessUser(ctx context.Context, businessUserID string, limit, offset int) ([]*venue.Venue, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*venue.Venue
	for _, v := range r.store.venues {
		if v.BusinessUserID == businessUserID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Audit.CreatedAt.Equal(out[j].Audit.CreatedAt) {
			return out[i].Audit.CreatedAt.After(out[j].Audit.CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, limit, offset), nil
}

var _ venue.Repository = (*VenueRepository)(nil)
