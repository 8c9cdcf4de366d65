package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/transaction"
)

// ReservationRepository は予約リポジトリのインメモリ実装
type ReservationRepository struct {
	store *Store
}

func NewReservationRepository(store *Store) *ReservationRepository {
	return &ReservationRepository{store: store}
}

// LockPerformance は公演のセマフォを取得する
// 取得できるまで最大 lockTimeout 待ち、超えた場合は ErrLockTimeout を返す
func (r *ReservationRepository) LockPerformance(ctx context.Context, txn transaction.Tx, performanceID string) error {
	t, err := unwrap(txn)
	if err != nil {
		return err
	}
	return t.lock(ctx, performanceID, r.store.lockTimeout)
}

func (r *ReservationRepository) ClaimedSeatIDs(ctx context.Context, txn transaction.Tx, performanceID string) ([]string, error) {
	if _, err := unwrap(txn); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	claimed := r.store.claims[performanceID]
	ids := make([]string, 0, len(claimed))
	for seatID := range claimed {
		ids = append(ids, seatID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *ReservationRepository) Create(ctx context.Context, txn transaction.Tx, res *reservation.Reservation) error {
	t, err := unwrap(txn)
	if err != nil {
		return err
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.Audit = audit.Created(res.UserID, r.store.clock.Now())
	snapshot := copyReservation(res)

	t.pending = append(t.pending, func(s *Store) error {
		// 排他区間の外から書き込まれた場合の最終防衛線（DBの一意制約に相当）
		claimed := s.claims[snapshot.PerformanceID]
		var conflicts []string
		for _, seat := range snapshot.Seats {
			if _, taken := claimed[seat.SeatID]; taken {
				conflicts = append(conflicts, seat.SeatID)
			}
		}
		if len(conflicts) > 0 {
			sort.Strings(conflicts)
			return &reservation.SeatConflictError{SeatIDs: conflicts}
		}

		if claimed == nil {
			claimed = make(map[string]string)
			s.claims[snapshot.PerformanceID] = claimed
		}
		for _, seat := range snapshot.Seats {
			claimed[seat.SeatID] = snapshot.ID
		}
		s.reservations[snapshot.ID] = snapshot
		return nil
	})
	return nil
}

func (r *ReservationRepository) Update(ctx context.Context, txn transaction.Tx, res *reservation.Reservation) error {
	t, err := unwrap(txn)
	if err != nil {
		return err
	}
	res.Audit = res.Audit.Touch(res.UserID, r.store.clock.Now())
	snapshot := copyReservation(res)

	t.pending = append(t.pending, func(s *Store) error {
		if _, ok := s.reservations[snapshot.ID]; !ok {
			return reservation.ErrReservationNotFound
		}
		if !snapshot.IsActive() {
			claimed := s.claims[snapshot.PerformanceID]
			for _, seat := range snapshot.Seats {
				if claimed[seat.SeatID] == snapshot.ID {
					delete(claimed, seat.SeatID)
				}
			}
		}
		s.reservations[snapshot.ID] = snapshot
		return nil
	})
	return nil
}

func (r *ReservationRepository) GetByIDTx(ctx context.Context, txn transaction.Tx, id string) (*reservation.Reservation, error) {
	if _, err := unwrap(txn); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	res, ok := r.store.reservations[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound
	}
	return copyReservation(res), nil
}

func (r *ReservationRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error) {
	return r.list(func(res *reservation.Reservation) bool { return res.UserID == userID }, limit, offset), nil
}

func (r *ReservationRepository) GetByPerformanceID(ctx context.Context, performanceID string, limit, offset int) ([]*reservation.Reservation, error) {
	return r.list(func(res *reservation.Reservation) bool { return res.PerformanceID == performanceID }, limit, offset), nil
}

func (r *ReservationRepository) CountClaimedSeats(ctx context.Context, performanceID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.claims[performanceID]), nil
}

func (r *ReservationRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*reservation.Reservation
	for _, res := range r.store.reservations {
		if res.IsExpired(now) {
			out = append(out, copyReservation(res))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return paginate(out, limit, 0), nil
}

func (r *ReservationRepository) list(match func(*reservation.Reservation) bool, limit, offset int) []*reservation.Reservation {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*reservation.Reservation
	for _, res := range r.store.reservations {
		if match(res) {
			out = append(out, copyReservation(res))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Audit.CreatedAt.Equal(out[j].Audit.CreatedAt) {
			return out[i].Audit.CreatedAt.After(out[j].Audit.CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, limit, offset)
}

var _ reservation.Repository = (*ReservationRepository)(nil)
