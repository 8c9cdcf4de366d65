package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/logger"
)

// ReservationCleaner は保持期限切れの支払い待ち予約を解放するインターフェース
type ReservationCleaner interface {
	CancelExpiredReservations(ctx context.Context) (int, error)
}

// ExpiredReservationCleaner は保持期限切れの予約を定期的に解放し、座席を空席に戻すワーカー
type ExpiredReservationCleaner struct {
	reservationService ReservationCleaner
	interval           time.Duration
	started            atomic.Bool
	stopCh             chan struct{}
	stopOnce           sync.Once
	doneCh             chan struct{}
}

// DefaultCleanupInterval は interval が 0 以下のときに使う実行間隔
const DefaultCleanupInterval = time.Minute

// NewExpiredReservationCleaner は新しいクリーナーを作成
func NewExpiredReservationCleaner(rs ReservationCleaner, interval time.Duration) *ExpiredReservationCleaner {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &ExpiredReservationCleaner{
		reservationService: rs,
		interval:           interval,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start はクリーナーを開始し、ctx のキャンセルか Stop まで戻らない
// 停止中に期限を過ぎた予約があるため、起動直後に一度解放処理を行う
func (c *ExpiredReservationCleaner) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	defer close(c.doneCh)

	select {
	case <-c.stopCh:
		return
	default:
	}

	logger.Info("期限切れ予約クリーナー開始", zap.Duration("interval", c.interval))
	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ予約クリーナー停止（コンテキストキャンセル）")
			return
		case <-c.stopCh:
			logger.Info("期限切れ予約クリーナー停止（シグナル受信）")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// Stop はクリーナーを停止し、開始済みであれば Start の終了を待つ
func (c *ExpiredReservationCleaner) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.started.Load() {
		<-c.doneCh
	}
}

// cleanup は1回分の解放処理。次の周期にかからないよう interval で打ち切る
func (c *ExpiredReservationCleaner) cleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	start := time.Now()
	count, err := c.reservationService.CancelExpiredReservations(ctx)
	if err != nil {
		logger.Error("期限切れ予約の解放に失敗", zap.Error(err))
		return
	}

	if count > 0 {
		logger.Info("期限切れ予約を解放しました",
			zap.Int("count", count),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
