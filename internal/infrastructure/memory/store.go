package memory

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/clock"
)

// Store は単一インスタンス向けのインメモリ永続化
// 公演ごとのセマフォで排他区間を実現するため、複数インスタンス構成では使えない
type Store struct {
	mu           sync.RWMutex
	venues       map[string]*venue.Venue
	performances map[string]*performance.Performance
	reservations map[string]*reservation.Reservation
	// performanceID -> seatID -> reservationID
	claims map[string]map[string]string

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	lockTimeout time.Duration
	clock       clock.Clock
}

// Option は Store の設定を変更する
type Option func(*Store)

// WithLockTimeout は排他区間に入るまでの待機上限を設定する
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		venues:       make(map[string]*venue.Venue),
		performances: make(map[string]*performance.Performance),
		reservations: make(map[string]*reservation.Reservation),
		claims:       make(map[string]map[string]string),
		locks:        make(map[string]chan struct{}),
		lockTimeout:  3 * time.Second,
		clock:        clock.NewSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) semaphore(performanceID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	sem, ok := s.locks[performanceID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[performanceID] = sem
	}
	return sem
}

func copyReservation(r *reservation.Reservation) *reservation.Reservation {
	c := *r
	c.Seats = append([]reservation.Seat(nil), r.Seats...)
	if r.TierPrices != nil {
		c.TierPrices = make(map[venue.SeatType]decimal.Decimal, len(r.TierPrices))
		for k, v := range r.TierPrices {
			c.TierPrices[k] = v
		}
	}
	if r.Payment != nil {
		p := *r.Payment
		c.Payment = &p
	}
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
