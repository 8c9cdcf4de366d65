package reservation

import (
	"context"
	"time"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// LockPerformance は公演単位の排他区間に入る（トランザクション終了まで保持）
	// 待機が上限を超えた場合は ErrLockTimeout を返す
	LockPerformance(ctx context.Context, tx transaction.Tx, performanceID string) error

	// ClaimedSeatIDs は公演でキャンセルされていない予約が確保している座席IDを返す
	ClaimedSeatIDs(ctx context.Context, tx transaction.Tx, performanceID string) ([]string, error)

	// Create は予約と座席の確保を保存する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// Update は予約の状態を更新する。キャンセル時は座席の確保も解除する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// GetByIDTx はトランザクション内で予約を取得する
	GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*Reservation, error)

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// GetByUserID はユーザーIDから予約一覧を取得する
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*Reservation, error)

	// GetByPerformanceID は公演IDから予約一覧を取得する
	GetByPerformanceID(ctx context.Context, performanceID string, limit, offset int) ([]*Reservation, error)

	// CountClaimedSeats は公演で確保済みの座席数を返す
	CountClaimedSeats(ctx context.Context, performanceID string) (int, error)

	// GetExpiredPending は保持期限を過ぎた支払い待ち予約を取得する
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}
