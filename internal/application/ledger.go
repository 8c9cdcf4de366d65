package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/clock"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/metrics"
)

const (
	lockRetryDelay     = 50 * time.Millisecond
	expiredReleaseSize = 100
)

// AvailabilityCache は公演ごとの空席数キャッシュ
type AvailabilityCache interface {
	GetAvailableCount(ctx context.Context, performanceID string) (int, error)
	SetAvailableCount(ctx context.Context, performanceID string, count int, ttl time.Duration) error
	Invalidate(ctx context.Context, performanceID string) error
}

// EventPublisher は予約イベントの配信先
type EventPublisher interface {
	Publish(ctx context.Context, ev reservation.Event) error
}

// LedgerConfig は台帳の動作設定
type LedgerConfig struct {
	LockTimeout time.Duration
	LockTTL     time.Duration
	HoldTTL     time.Duration
}

// ReservationLedger は公演ごとの座席確保を排他的に管理する
// 確保済み座席の集合を変更するのはこのコンポーネントだけで、必ず公演単位の排他区間内で行う
type ReservationLedger struct {
	txManager   transaction.Manager
	repo        reservation.Repository
	lockManager redisinfra.LockManagerInterface
	cache       AvailabilityCache
	publisher   EventPublisher
	metrics     *metrics.Metrics
	clock       clock.Clock
	cfg         LedgerConfig
}

// LedgerOption は任意の協調コンポーネントを設定する
type LedgerOption func(*ReservationLedger)

func WithLockManager(lm redisinfra.LockManagerInterface) LedgerOption {
	return func(l *ReservationLedger) { l.lockManager = lm }
}

func WithAvailabilityCache(c AvailabilityCache) LedgerOption {
	return func(l *ReservationLedger) { l.cache = c }
}

func WithEventPublisher(p EventPublisher) LedgerOption {
	return func(l *ReservationLedger) { l.publisher = p }
}

func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *ReservationLedger) { l.metrics = m }
}

func WithClock(c clock.Clock) LedgerOption {
	return func(l *ReservationLedger) { l.clock = c }
}

func NewReservationLedger(txManager transaction.Manager, repo reservation.Repository, cfg LedgerConfig, opts ...LedgerOption) *ReservationLedger {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 3 * time.Second
	}
	l := &ReservationLedger{
		txManager: txManager,
		repo:      repo,
		clock:     clock.NewSystem(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ReserveInput は座席確保の入力
type ReserveInput struct {
	PerformanceID string
	UserID        string
	SeatIDs       []string
	Venue         reservation.SeatTypeResolver
	Pricing       reservation.UnitPricer
}

// Reserve は座席を確保して支払い待ちの予約を作成する
// 他の有効な予約と1席でも重複した場合は *reservation.SeatConflictError を返し、1席も確保しない
func (l *ReservationLedger) Reserve(ctx context.Context, in ReserveInput) (*reservation.Reservation, error) {
	now := l.clock.Now()

	// 入力の検証は排他区間の外で行う
	res, err := reservation.Book(reservation.BookParams{
		UserID:        in.UserID,
		PerformanceID: in.PerformanceID,
		SeatIDs:       in.SeatIDs,
		Venue:         in.Venue,
		Pricing:       in.Pricing,
		Now:           now,
		HoldTTL:       l.cfg.HoldTTL,
	})
	if err != nil {
		l.countReservation("invalid")
		return nil, err
	}

	err = l.withinPerformance(ctx, in.PerformanceID, "reserve", func(tx transaction.Tx) error {
		claimed, err := l.repo.ClaimedSeatIDs(ctx, tx, in.PerformanceID)
		if err != nil {
			return err
		}
		if conflicts := intersectSeats(claimed, in.SeatIDs); len(conflicts) > 0 {
			return &reservation.SeatConflictError{SeatIDs: conflicts}
		}
		return l.repo.Create(ctx, tx, res)
	})
	if err != nil {
		l.countReservation(reserveFailureStatus(err))
		return nil, err
	}

	l.countReservation("success")
	l.gauge(reservation.StatusPending, 1)
	logger.ForPerformance(in.PerformanceID).Info("座席を確保しました",
		zap.String("reservation_id", res.ID),
		zap.Strings("seat_ids", res.SeatIDs()),
		zap.String("total_price", res.TotalPrice.String()),
	)
	l.afterCommit(ctx, reservation.EventReservationCreated, res, now)
	return res, nil
}

// Release は予約をキャンセルし、その座席を同じ排他区間内で解放する
func (l *ReservationLedger) Release(ctx context.Context, reservationID string) (*reservation.Reservation, error) {
	current, err := l.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	return l.release(ctx, current.PerformanceID, reservationID, nil)
}

// AttachPayment は支払い情報を紐付けて予約を確定する
// 同じ公演の解放処理と競合しないよう排他区間内で状態を遷移させる
func (l *ReservationLedger) AttachPayment(ctx context.Context, reservationID string, info reservation.PaymentInfo) (*reservation.Reservation, error) {
	current, err := l.repo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	var res *reservation.Reservation
	err = l.withinPerformance(ctx, current.PerformanceID, "confirm", func(tx transaction.Tx) error {
		r, err := l.repo.GetByIDTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if err := r.AttachPayment(info, now); err != nil {
			return err
		}
		res = r
		return l.repo.Update(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	l.gauge(reservation.StatusPending, -1)
	l.gauge(reservation.StatusConfirmed, 1)
	logger.ForPerformance(res.PerformanceID).Info("予約を確定しました",
		zap.String("reservation_id", res.ID),
		zap.String("payment_key", info.PaymentKey),
	)
	l.afterCommit(ctx, reservation.EventReservationConfirmed, res, now)
	return res, nil
}

// ReleaseExpired は保持期限を過ぎた支払い待ち予約を解放し、解放した件数を返す
func (l *ReservationLedger) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := l.repo.GetExpiredPending(ctx, now, expiredReleaseSize)
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	released := 0
	for _, r := range expired {
		_, err := l.release(ctx, r.PerformanceID, r.ID, func(cur *reservation.Reservation) bool {
			// 排他区間に入るまでに確定・キャンセルされた予約は対象外
			return cur.IsExpired(now)
		})
		switch {
		case err == nil:
			released++
		case errors.Is(err, errSkipRelease):
		default:
			logger.Warn("期限切れ予約の解放に失敗",
				zap.String("reservation_id", r.ID),
				zap.Error(err),
			)
		}
	}
	if l.metrics != nil && released > 0 {
		l.metrics.ExpiredHoldsReleasedTotal.Add(float64(released))
	}
	return released, nil
}

var errSkipRelease = errors.New("解放対象外")

func (l *ReservationLedger) release(ctx context.Context, performanceID, reservationID string, shouldRelease func(*reservation.Reservation) bool) (*reservation.Reservation, error) {
	now := l.clock.Now()
	var (
		res        *reservation.Reservation
		prevStatus reservation.Status
	)
	err := l.withinPerformance(ctx, performanceID, "release", func(tx transaction.Tx) error {
		r, err := l.repo.GetByIDTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if shouldRelease != nil && !shouldRelease(r) {
			return errSkipRelease
		}
		prevStatus = r.Status
		if err := r.Cancel(now); err != nil {
			return err
		}
		res = r
		return l.repo.Update(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	l.gauge(prevStatus, -1)
	logger.ForPerformance(performanceID).Info("座席を解放しました",
		zap.String("reservation_id", res.ID),
		zap.String("previous_status", string(prevStatus)),
	)
	l.afterCommit(ctx, reservation.EventReservationCancelled, res, now)
	return res, nil
}

// withinPerformance は公演単位の排他区間で fn を実行し、コミットしてから区間を抜ける
func (l *ReservationLedger) withinPerformance(ctx context.Context, performanceID, operation string, fn func(tx transaction.Tx) error) error {
	unlock, err := l.acquireDistributedLock(ctx, performanceID)
	if err != nil {
		return err
	}
	defer unlock()

	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.LedgerCriticalSection.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		}
	}()

	return transaction.Run(ctx, l.txManager, func(tx transaction.Tx) error {
		if err := l.repo.LockPerformance(ctx, tx, performanceID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// acquireDistributedLock は設定されていれば Redis の公演ロックを取得する
// Redis 自体が使えない場合は DB の排他区間だけで処理を続ける
func (l *ReservationLedger) acquireDistributedLock(ctx context.Context, performanceID string) (func(), error) {
	if l.lockManager == nil {
		return func() {}, nil
	}

	retries := int(l.cfg.LockTimeout/lockRetryDelay) + 1
	start := time.Now()
	lock, err := l.lockManager.AcquireLockWithRetry(ctx, redisinfra.PerformanceLockKey(performanceID), l.cfg.LockTTL, retries, lockRetryDelay)
	if err != nil {
		l.observeLock("acquire", "failed", start)
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: performance=%s", reservation.ErrLockTimeout, performanceID)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("分散ロックを利用できません。DBの排他のみで続行します",
			zap.String("performance_id", performanceID),
			zap.Error(err),
		)
		return func() {}, nil
	}
	l.observeLock("acquire", "success", start)

	return func() {
		start := time.Now()
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.observeLock("release", "failed", start)
			logger.Warn("分散ロックの解放に失敗",
				zap.String("performance_id", performanceID),
				zap.Error(err),
			)
			return
		}
		l.observeLock("release", "success", start)
	}, nil
}

// afterCommit はコミット後の副作用（キャッシュ無効化とイベント配信）を行う
// 失敗してもログに残すだけで、確定した結果は変えない
func (l *ReservationLedger) afterCommit(ctx context.Context, t reservation.EventType, res *reservation.Reservation, now time.Time) {
	ctx = context.WithoutCancel(ctx)
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, res.PerformanceID); err != nil {
			logger.Warn("空席数キャッシュの無効化に失敗",
				zap.String("performance_id", res.PerformanceID),
				zap.Error(err),
			)
		}
	}
	if l.publisher != nil {
		status := "success"
		if err := l.publisher.Publish(ctx, reservation.NewEvent(t, res, now)); err != nil {
			status = "failed"
			logger.Warn("予約イベントの配信に失敗",
				zap.String("event", string(t)),
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
		}
		if l.metrics != nil {
			l.metrics.EventsPublishedTotal.WithLabelValues(string(t), status).Inc()
		}
	}
}

func (l *ReservationLedger) countReservation(status string) {
	if l.metrics != nil {
		l.metrics.ReservationsTotal.WithLabelValues(status).Inc()
	}
}

func (l *ReservationLedger) gauge(status reservation.Status, delta float64) {
	if l.metrics != nil && status != reservation.StatusCancelled {
		l.metrics.ActiveReservations.WithLabelValues(string(status)).Add(delta)
	}
}

func (l *ReservationLedger) observeLock(operation, status string, start time.Time) {
	if l.metrics != nil {
		l.metrics.DistributedLockDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	}
}

func reserveFailureStatus(err error) string {
	switch {
	case errors.Is(err, reservation.ErrSeatAlreadyTaken):
		return "conflict"
	case errors.Is(err, reservation.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}

// intersectSeats は確保済み座席と要求座席の重複をソートして返す
func intersectSeats(claimed, requested []string) []string {
	if len(claimed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range requested {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
