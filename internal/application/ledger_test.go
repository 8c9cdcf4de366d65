package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	redisinfra "github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/clock"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/metrics"
)

// 3秒 / 50ms + 1
const expectedLockRetries = 61

type ledgerDeps struct {
	txManager   *MockTxManager
	tx          *MockTx
	repo        *MockReservationRepository
	lockManager *MockLockManager
	lock        *MockLock
	cache       *MockAvailabilityCache
	publisher   *MockEventPublisher
	metrics     *metrics.Metrics
	ledger      *ReservationLedger
}

func newLedgerDeps() *ledgerDeps {
	d := &ledgerDeps{
		txManager:   new(MockTxManager),
		tx:          new(MockTx),
		repo:        new(MockReservationRepository),
		lockManager: new(MockLockManager),
		lock:        new(MockLock),
		cache:       new(MockAvailabilityCache),
		publisher:   new(MockEventPublisher),
		metrics:     metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	d.ledger = NewReservationLedger(d.txManager, d.repo,
		LedgerConfig{LockTimeout: 3 * time.Second, LockTTL: 10 * time.Second, HoldTTL: reservation.DefaultHoldTTL},
		WithLockManager(d.lockManager),
		WithAvailabilityCache(d.cache),
		WithEventPublisher(d.publisher),
		WithMetrics(d.metrics),
		WithClock(clock.NewFixed(testNow)),
	)
	return d
}

func (d *ledgerDeps) expectLock(ctx context.Context, performanceID string) {
	d.lockManager.On("AcquireLockWithRetry", ctx, redisinfra.PerformanceLockKey(performanceID), 10*time.Second, expectedLockRetries, 50*time.Millisecond).
		Return(d.lock, nil)
	d.lock.On("Release", mock.Anything).Return(nil)
}

func (d *ledgerDeps) expectCriticalSection(ctx context.Context, performanceID string) {
	d.txManager.On("Begin", ctx).Return(d.tx, nil)
	d.repo.On("LockPerformance", ctx, d.tx, performanceID).Return(nil)
}

func (d *ledgerDeps) reserveInput(t *testing.T, seatIDs ...string) ReserveInput {
	return ReserveInput{
		PerformanceID: "perf-1",
		UserID:        "user-1",
		SeatIDs:       seatIDs,
		Venue:         testVenue(t),
		Pricing:       testPricing(),
	}
}

func pendingReservation(id string, seatIDs ...string) *reservation.Reservation {
	seats := make([]reservation.Seat, len(seatIDs))
	for i, s := range seatIDs {
		seats[i] = reservation.Seat{SeatID: s, SeatType: venue.SeatTypeNormal, UnitPrice: decimal.NewFromInt(10000)}
	}
	return reservation.Reconstruct(reservation.ReconstructParams{
		ID:            id,
		UserID:        "user-1",
		PerformanceID: "perf-1",
		Seats:         seats,
		TotalPrice:    decimal.NewFromInt(int64(10000 * len(seatIDs))),
		Status:        reservation.StatusPending,
		ExpiresAt:     testNow.Add(reservation.DefaultHoldTTL),
	})
}

func TestReservationLedger_Reserve_Success(t *testing.T) {
	d := newLedgerDeps()
	ctx := context.Background()

	d.expectLock(ctx, "perf-1")
	d.expectCriticalSection(ctx, "perf-1")
	d.repo.On("ClaimedSeatIDs", ctx, d.tx, "perf-1").Return([]string{"A2"}, nil)
	d.repo.On("Create", ctx, d.tx, mock.AnythingOfType("*reservation.Reservation")).
		Run(func(args mock.Arguments) {
			args.Get(2).(*reservation.Reservation).ID = "res-1"
		}).
		Return(nil)
	d.tx.On("Commit").Return(nil)
	d.cache.On("Invalidate", mock.Anything, "perf-1").Return(nil)
	d.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(ev reservation.Event) bool {
		return ev.Type == reservation.EventReservationCreated && ev.ReservationID == "res-1" && ev.TotalPrice == "30000"
	})).Return(nil)

	res, err := d.ledger.Reserve(ctx, d.reserveInput(t, "A1", "B1"))

	require.NoError(t, err)
	assert.Equal(t, "res-1", res.ID)
	assert.Equal(t, reservation.StatusPending, res.Status)
	assert.True(t, decimal.NewFromInt(10000).Equal(res.NormalPrice()))
	assert.True(t, decimal.NewFromInt(20000).Equal(res.VIPPrice()))
	assert.True(t, decimal.NewFromInt(30000).Equal(res.TotalPrice))
	assert.Equal(t, testNow.Add(reservation.DefaultHoldTTL), res.ExpiresAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ActiveReservations.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.EventsPublishedTotal.WithLabelValues("ReservationCreated", "success")))

	d.txManager.AssertExpectations(t)
	d.tx.AssertExpectations(t)
	d.repo.AssertExpectations(t)
	d.lockManager.AssertExpectations(t)
	d.lock.AssertExpectations(t)
	d.cache.AssertExpectations(t)
	d.publisher.AssertExpectations(t)
}

func TestReservationLedger_Reserve_SeatConflict(t *testing.T) {
	d := newLedgerDeps()
	ctx := context.Background()

	d.expectLock(ctx, "perf-1")
	d.expectCriticalSection(ctx, "perf-1")
	d.repo.On("ClaimedSeatIDs", ctx, d.tx, "perf-1").Return([]string{"B1", "A1"}, nil)
	d.tx.On("Rollback").Return(nil)

	res, err := d.ledger.Reserve(ctx, d.reserveInput(t, "B1", "A2", "A1"))

	assert.Nil(t, res)
	require.ErrorIs(t, err, reservation.ErrSeatAlreadyTaken)
	var conflict *reservation.SeatConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"A1", "B1"}, conflict.SeatIDs)

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("conflict")))
	d.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	d.tx.AssertNotCalled(t, "Commit")
	d.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	d.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestReservationLedger_Reserve_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		seatIDs []string
		wantErr error
	}{
		{name: "座席が空", seatIDs: nil, wantErr: reservation.ErrEmptySeatSelection},
		{name: "会場に存在しない座席", seatIDs: []string{"A1", "Z9"}, wantErr: reservation.ErrUnknownSeat},
		{name: "重複した座席", seatIDs: []string{"A1", "A1"}, wantErr: reservation.ErrDuplicateSeatSelection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newLedgerDeps()

			res, err := d.ledger.Reserve(context.Background(), d.reserveInput(t, tt.seatIDs...))

			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("invalid")))
			// 排他区間に入らない
			d.lockManager.AssertNotCalled(t, "AcquireLockWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			d.txManager.AssertNotCalled(t, "Begin", mock.Anything)
		})
	}
}

func TestReservationLedger_Reserve_LockTimeout(t *testing.T) {
	t.Run("分散ロックを取得できない", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		d.lockManager.On("AcquireLockWithRetry", ctx, "performance:perf-1", 10*time.Second, expectedLockRetries, 50*time.Millisecond).
			Return(nil, redisinfra.ErrLockNotAcquired)

		res, err := d.ledger.Reserve(ctx, d.reserveInput(t, "A1"))

		assert.Nil(t, res)
		assert.ErrorIs(t, err, reservation.ErrLockTimeout)
		assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("lock_timeout")))
		d.txManager.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("公演ロック行の待機がタイムアウト", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		d.expectLock(ctx, "perf-1")
		d.txManager.On("Begin", ctx).Return(d.tx, nil)
		d.repo.On("LockPerformance", ctx, d.tx, "perf-1").Return(reservation.ErrLockTimeout)
		d.tx.On("Rollback").Return(nil)

		res, err := d.ledger.Reserve(ctx, d.reserveInput(t, "A1"))

		assert.Nil(t, res)
		assert.ErrorIs(t, err, reservation.ErrLockTimeout)
		assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("lock_timeout")))
		d.lock.AssertCalled(t, "Release", mock.Anything)
	})
}

func TestReservationLedger_Reserve_RedisUnavailable(t *testing.T) {
	d := newLedgerDeps()
	ctx := context.Background()

	d.lockManager.On("AcquireLockWithRetry", ctx, "performance:perf-1", 10*time.Second, expectedLockRetries, 50*time.Millisecond).
		Return(nil, errors.New("dial tcp: connection refused"))
	d.expectCriticalSection(ctx, "perf-1")
	d.repo.On("ClaimedSeatIDs", ctx, d.tx, "perf-1").Return(nil, nil)
	d.repo.On("Create", ctx, d.tx, mock.AnythingOfType("*reservation.Reservation")).Return(nil)
	d.tx.On("Commit").Return(nil)
	d.cache.On("Invalidate", mock.Anything, "perf-1").Return(errors.New("redis down"))
	d.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	// Redis が使えなくても DB の排他区間だけで確保できる
	res, err := d.ledger.Reserve(ctx, d.reserveInput(t, "A1"))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.EventsPublishedTotal.WithLabelValues("ReservationCreated", "failed")))
}

func TestReservationLedger_Reserve_CreateFailed(t *testing.T) {
	d := newLedgerDeps()
	ctx := context.Background()

	d.expectLock(ctx, "perf-1")
	d.expectCriticalSection(ctx, "perf-1")
	d.repo.On("ClaimedSeatIDs", ctx, d.tx, "perf-1").Return(nil, nil)
	d.repo.On("Create", ctx, d.tx, mock.Anything).Return(errors.New("db error"))
	d.tx.On("Rollback").Return(nil)

	res, err := d.ledger.Reserve(ctx, d.reserveInput(t, "A1"))

	assert.Nil(t, res)
	assert.EqualError(t, err, "db error")
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ReservationsTotal.WithLabelValues("error")))
	d.tx.AssertCalled(t, "Rollback")
}

func TestReservationLedger_Release(t *testing.T) {
	t.Run("予約をキャンセルして座席を解放", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		current := pendingReservation("res-1", "A1")

		d.repo.On("GetByID", ctx, "res-1").Return(current, nil)
		d.expectLock(ctx, "perf-1")
		d.expectCriticalSection(ctx, "perf-1")
		d.repo.On("GetByIDTx", ctx, d.tx, "res-1").Return(pendingReservation("res-1", "A1"), nil)
		d.repo.On("Update", ctx, d.tx, mock.MatchedBy(func(r *reservation.Reservation) bool {
			return r.Status == reservation.StatusCancelled
		})).Return(nil)
		d.tx.On("Commit").Return(nil)
		d.cache.On("Invalidate", mock.Anything, "perf-1").Return(nil)
		d.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(ev reservation.Event) bool {
			return ev.Type == reservation.EventReservationCancelled
		})).Return(nil)

		res, err := d.ledger.Release(ctx, "res-1")

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusCancelled, res.Status)
		require.NotNil(t, res.CancelledAt)
		assert.Equal(t, testNow, *res.CancelledAt)
		d.repo.AssertExpectations(t)
		d.publisher.AssertExpectations(t)
	})

	t.Run("キャンセル済み", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		cancelled := pendingReservation("res-1", "A1")
		require.NoError(t, cancelled.Cancel(testNow))

		d.repo.On("GetByID", ctx, "res-1").Return(cancelled, nil)
		d.expectLock(ctx, "perf-1")
		d.expectCriticalSection(ctx, "perf-1")
		d.repo.On("GetByIDTx", ctx, d.tx, "res-1").Return(cancelled, nil)
		d.tx.On("Rollback").Return(nil)

		res, err := d.ledger.Release(ctx, "res-1")

		assert.Nil(t, res)
		assert.ErrorIs(t, err, reservation.ErrReservationAlreadyCancelled)
		d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("予約が存在しない", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		d.repo.On("GetByID", ctx, "missing").Return(nil, reservation.ErrReservationNotFound)

		res, err := d.ledger.Release(ctx, "missing")

		assert.Nil(t, res)
		assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
	})
}

func TestReservationLedger_AttachPayment(t *testing.T) {
	payment := reservation.PaymentInfo{PaymentKey: "pay-1", Method: "CARD", Amount: decimal.NewFromInt(10000)}

	t.Run("支払い情報を紐付けて確定", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()

		d.repo.On("GetByID", ctx, "res-1").Return(pendingReservation("res-1", "A1"), nil)
		d.expectLock(ctx, "perf-1")
		d.expectCriticalSection(ctx, "perf-1")
		d.repo.On("GetByIDTx", ctx, d.tx, "res-1").Return(pendingReservation("res-1", "A1"), nil)
		d.repo.On("Update", ctx, d.tx, mock.MatchedBy(func(r *reservation.Reservation) bool {
			return r.Status == reservation.StatusConfirmed && r.Payment != nil
		})).Return(nil)
		d.tx.On("Commit").Return(nil)
		d.cache.On("Invalidate", mock.Anything, "perf-1").Return(nil)
		d.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(ev reservation.Event) bool {
			return ev.Type == reservation.EventReservationConfirmed
		})).Return(nil)

		res, err := d.ledger.AttachPayment(ctx, "res-1", payment)

		require.NoError(t, err)
		assert.Equal(t, reservation.StatusConfirmed, res.Status)
		assert.Equal(t, testNow, res.Payment.PaidAt)
		assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ActiveReservations.WithLabelValues("confirmed")))
	})

	t.Run("支払額の不一致はロールバック", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()

		d.repo.On("GetByID", ctx, "res-1").Return(pendingReservation("res-1", "A1", "A2"), nil)
		d.expectLock(ctx, "perf-1")
		d.expectCriticalSection(ctx, "perf-1")
		d.repo.On("GetByIDTx", ctx, d.tx, "res-1").Return(pendingReservation("res-1", "A1", "A2"), nil)
		d.tx.On("Rollback").Return(nil)

		res, err := d.ledger.AttachPayment(ctx, "res-1", payment)

		assert.Nil(t, res)
		assert.ErrorIs(t, err, reservation.ErrPaymentAmountMismatch)
		d.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReservationLedger_ReleaseExpired(t *testing.T) {
	t.Run("期限切れのみ解放し、確定済みはスキップ", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		now := testNow.Add(time.Hour)

		d.repo.On("GetExpiredPending", ctx, now, expiredReleaseSize).Return([]*reservation.Reservation{
			pendingReservation("res-1", "A1"),
			pendingReservation("res-2", "A2"),
		}, nil)
		d.expectLock(ctx, "perf-1")
		d.expectCriticalSection(ctx, "perf-1")

		d.repo.On("GetByIDTx", ctx, d.tx, "res-1").Return(pendingReservation("res-1", "A1"), nil)
		d.repo.On("Update", ctx, d.tx, mock.MatchedBy(func(r *reservation.Reservation) bool {
			return r.ID == "res-1" && r.Status == reservation.StatusCancelled
		})).Return(nil)
		d.tx.On("Commit").Return(nil)

		// 排他区間に入る前に確定された予約
		confirmed := pendingReservation("res-2", "A2")
		require.NoError(t, confirmed.AttachPayment(reservation.PaymentInfo{PaymentKey: "k", Amount: confirmed.TotalPrice}, testNow))
		d.repo.On("GetByIDTx", ctx, d.tx, "res-2").Return(confirmed, nil)
		d.tx.On("Rollback").Return(nil)

		d.cache.On("Invalidate", mock.Anything, "perf-1").Return(nil)
		d.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

		count, err := d.ledger.ReleaseExpired(ctx, now)

		require.NoError(t, err)
		assert.Equal(t, 1, count)
		d.repo.AssertNumberOfCalls(t, "Update", 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.ExpiredHoldsReleasedTotal))
	})

	t.Run("個別の失敗は残りの処理を止めない", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		now := testNow.Add(time.Hour)

		d.repo.On("GetExpiredPending", ctx, now, expiredReleaseSize).Return([]*reservation.Reservation{
			pendingReservation("res-1", "A1"),
			pendingReservation("res-2", "A2"),
		}, nil)
		d.expectLock(ctx, "perf-1")
		d.expectCriticalSection(ctx, "perf-1")
		d.repo.On("GetByIDTx", ctx, d.tx, "res-1").Return(nil, errors.New("db error"))
		d.repo.On("GetByIDTx", ctx, d.tx, "res-2").Return(pendingReservation("res-2", "A2"), nil)
		d.repo.On("Update", ctx, d.tx, mock.Anything).Return(nil)
		d.tx.On("Rollback").Return(nil)
		d.tx.On("Commit").Return(nil)
		d.cache.On("Invalidate", mock.Anything, "perf-1").Return(nil)
		d.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

		count, err := d.ledger.ReleaseExpired(ctx, now)

		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("取得エラー", func(t *testing.T) {
		d := newLedgerDeps()
		ctx := context.Background()
		d.repo.On("GetExpiredPending", ctx, testNow, expiredReleaseSize).Return(nil, errors.New("db error"))

		count, err := d.ledger.ReleaseExpired(ctx, testNow)

		require.Error(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestIntersectSeats(t *testing.T) {
	assert.Nil(t, intersectSeats(nil, []string{"A1"}))
	assert.Empty(t, intersectSeats([]string{"A2"}, []string{"A1"}))
	assert.Equal(t, []string{"A1", "B1"}, intersectSeats([]string{"B1", "A1", "A2"}, []string{"B1", "A1"}))
}
