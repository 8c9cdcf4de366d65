package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	"github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/memory"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/clock"
)

type scenarioEnv struct {
	store     *memory.Store
	txManager *memory.TxManager
	resRepo   *memory.ReservationRepository
	ledger    *ReservationLedger
	service   *ReservationService
}

func setupScenario(t *testing.T, v *venue.Venue, lockTimeout time.Duration, performanceIDs ...string) *scenarioEnv {
	t.Helper()
	ctx := context.Background()
	c := clock.NewFixed(testNow)

	store := memory.NewStore(memory.WithLockTimeout(lockTimeout), memory.WithClock(c))
	venueRepo := memory.NewVenueRepository(store)
	performanceRepo := memory.NewPerformanceRepository(store)
	resRepo := memory.NewReservationRepository(store)
	txManager := memory.NewTxManager(store)

	require.NoError(t, venueRepo.Create(ctx, v))
	for _, id := range performanceIDs {
		require.NoError(t, performanceRepo.Create(ctx, testPerformance(id, v.ID)))
	}

	ledger := NewReservationLedger(txManager, resRepo,
		LedgerConfig{LockTimeout: lockTimeout, HoldTTL: reservation.DefaultHoldTTL},
		WithClock(c),
	)
	return &scenarioEnv{
		store:     store,
		txManager: txManager,
		resRepo:   resRepo,
		ledger:    ledger,
		service:   NewReservationService(ledger, resRepo, performanceRepo, venueRepo, c),
	}
}

func (e *scenarioEnv) reserve(performanceID, userID string, seatIDs ...string) (*reservation.Reservation, error) {
	return e.service.CreateReservation(context.Background(), CreateReservationInput{
		PerformanceID: performanceID,
		UserID:        userID,
		SeatIDs:       seatIDs,
	})
}

// numberedVenue は S00〜S(n-1) の NORMAL 席を持つ会場
func numberedVenue(t *testing.T, n int) *venue.Venue {
	t.Helper()
	seats := make([]venue.Seat, n)
	for i := range seats {
		id := fmt.Sprintf("S%02d", i)
		seats[i] = venue.Seat{ID: id, SeatNumber: id, SeatType: venue.SeatTypeNormal}
	}
	v, err := venue.Create(venue.CreateParams{
		ID:               "venue-n",
		BusinessUserID:   "biz-1",
		Name:             "大ホール",
		Type:             venue.TypeStadium,
		RunningStartedAt: venue.MustTimeOfDay(9, 0, 0),
		RunningEndedAt:   venue.MustTimeOfDay(23, 0, 0),
		Seats:            seats,
	})
	require.NoError(t, err)
	return v
}

// TestScenario_ExampleBooking は会場V・公演1/2での一連の予約を確認する
func TestScenario_ExampleBooking(t *testing.T) {
	env := setupScenario(t, testVenue(t), 3*time.Second, "perf-1", "perf-2")

	first, err := env.reserve("perf-1", "user-1", "A1", "B1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10000).Equal(first.NormalPrice()))
	assert.True(t, decimal.NewFromInt(20000).Equal(first.VIPPrice()))
	assert.True(t, decimal.NewFromInt(30000).Equal(first.TotalPrice))

	var (
		wg                  sync.WaitGroup
		secondErr, thirdErr error
		third               *reservation.Reservation
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, secondErr = env.reserve("perf-1", "user-2", "A1", "A2")
	}()
	go func() {
		defer wg.Done()
		third, thirdErr = env.reserve("perf-2", "user-3", "A1", "A2")
	}()
	wg.Wait()

	require.ErrorIs(t, secondErr, reservation.ErrSeatAlreadyTaken)
	var conflict *reservation.SeatConflictError
	require.True(t, errors.As(secondErr, &conflict))
	assert.Equal(t, []string{"A1"}, conflict.SeatIDs)

	// 別の公演は独立して確保できる
	require.NoError(t, thirdErr)
	assert.True(t, decimal.NewFromInt(20000).Equal(third.TotalPrice))
}

// TestScenario_ConcurrentOverlappingReservations は重複する座席集合を並行に確保しても二重確保が起きないことを確認する
func TestScenario_ConcurrentOverlappingReservations(t *testing.T) {
	const (
		seats      = 10
		goroutines = 50
	)
	env := setupScenario(t, numberedVenue(t, seats), 5*time.Second, "perf-1")

	var (
		mu        sync.Mutex
		successes []*reservation.Reservation
		conflicts int
	)
	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < goroutines; i++ {
		i := i
		g.Go(func() error {
			seatIDs := []string{
				fmt.Sprintf("S%02d", i%seats),
				fmt.Sprintf("S%02d", (i+1)%seats),
				fmt.Sprintf("S%02d", (i+3)%seats),
			}
			res, err := env.reserve("perf-1", fmt.Sprintf("user-%d", i), seatIDs...)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes = append(successes, res)
			case errors.Is(err, reservation.ErrSeatAlreadyTaken):
				conflicts++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NotEmpty(t, successes)
	assert.Equal(t, goroutines, len(successes)+conflicts)

	// 成功した予約の座席の和集合に重複がない
	claimed := make(map[string]string)
	total := 0
	for _, res := range successes {
		for _, id := range res.SeatIDs() {
			prev, dup := claimed[id]
			assert.False(t, dup, "座席 %s が %s と %s で二重確保された", id, prev, res.ID)
			claimed[id] = res.ID
			total++
		}
	}
	assert.Len(t, claimed, total)

	count, err := env.resRepo.CountClaimedSeats(context.Background(), "perf-1")
	require.NoError(t, err)
	assert.Equal(t, total, count)
}

// TestScenario_ReleaseReopensSeats はキャンセルした予約の座席が再度確保できることを確認する
func TestScenario_ReleaseReopensSeats(t *testing.T) {
	env := setupScenario(t, testVenue(t), 3*time.Second, "perf-1")
	ctx := context.Background()

	first, err := env.reserve("perf-1", "user-1", "A1", "B1")
	require.NoError(t, err)

	_, err = env.reserve("perf-1", "user-2", "B1")
	require.ErrorIs(t, err, reservation.ErrSeatAlreadyTaken)

	cancelled, err := env.service.CancelReservation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, cancelled.Status)

	second, err := env.reserve("perf-1", "user-2", "B1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B1"}, second.SeatIDs())

	_, err = env.service.CancelReservation(ctx, first.ID)
	assert.ErrorIs(t, err, reservation.ErrReservationAlreadyCancelled)
}

// TestScenario_FailedReservationClaimsNothing は競合で失敗した予約が1席も確保しないことを確認する
func TestScenario_FailedReservationClaimsNothing(t *testing.T) {
	env := setupScenario(t, testVenue(t), 3*time.Second, "perf-1")

	_, err := env.reserve("perf-1", "user-1", "A1")
	require.NoError(t, err)

	_, err = env.reserve("perf-1", "user-2", "A2", "B1", "A1")
	require.ErrorIs(t, err, reservation.ErrSeatAlreadyTaken)

	// 失敗した要求の他の座席は空いたまま
	res, err := env.reserve("perf-1", "user-3", "A2", "B1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "B1"}, res.SeatIDs())

	count, err := env.resRepo.CountClaimedSeats(context.Background(), "perf-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// TestScenario_LockTimeout は排他区間の待機が上限を超えると ErrLockTimeout になることを確認する
func TestScenario_LockTimeout(t *testing.T) {
	env := setupScenario(t, testVenue(t), 50*time.Millisecond, "perf-1", "perf-2")
	ctx := context.Background()

	holder, err := env.txManager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, env.resRepo.LockPerformance(ctx, holder, "perf-1"))

	_, err = env.reserve("perf-1", "user-1", "A1")
	assert.ErrorIs(t, err, reservation.ErrLockTimeout)

	// 別の公演はブロックされない
	_, err = env.reserve("perf-2", "user-1", "A1")
	assert.NoError(t, err)

	require.NoError(t, holder.Rollback())
	_, err = env.reserve("perf-1", "user-1", "A1")
	assert.NoError(t, err)
}

// TestScenario_ConfirmAndExpire は確定した予約は期限切れ解放の対象外であることを確認する
func TestScenario_ConfirmAndExpire(t *testing.T) {
	env := setupScenario(t, testVenue(t), 3*time.Second, "perf-1")
	ctx := context.Background()

	paid, err := env.reserve("perf-1", "user-1", "A1")
	require.NoError(t, err)
	unpaid, err := env.reserve("perf-1", "user-2", "A2")
	require.NoError(t, err)

	confirmed, err := env.service.ConfirmReservation(ctx, ConfirmReservationInput{
		ReservationID: paid.ID,
		Payment:       reservation.PaymentInfo{PaymentKey: "pay-1", Method: "CARD", Amount: paid.TotalPrice},
	})
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConfirmed, confirmed.Status)

	released, err := env.ledger.ReleaseExpired(ctx, testNow.Add(reservation.DefaultHoldTTL+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	got, err := env.service.GetReservation(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, got.Status)

	// 解放された座席は再度確保できる
	_, err = env.reserve("perf-1", "user-3", "A2")
	assert.NoError(t, err)
	_, err = env.reserve("perf-1", "user-3", "A1")
	assert.ErrorIs(t, err, reservation.ErrSeatAlreadyTaken)
}
