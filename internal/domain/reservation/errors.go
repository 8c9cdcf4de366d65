package reservation

import (
	"errors"
	"fmt"
	"strings"
)

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound         = errors.New("予約が見つかりません")
	ErrEmptySeatSelection          = errors.New("座席が選択されていません")
	ErrDuplicateSeatSelection      = errors.New("同じ座席が重複して選択されています")
	ErrUnknownSeat                 = errors.New("会場に存在しない座席です")
	ErrSeatAlreadyTaken            = errors.New("座席は既に予約されています")
	ErrLockTimeout                 = errors.New("公演の座席処理が混み合っています。再試行してください")
	ErrReservationAlreadyCancelled = errors.New("予約は既にキャンセルされています")
	ErrReservationAlreadyConfirmed = errors.New("予約は既に確定されています")
	ErrReservationExpired          = errors.New("予約の有効期限が切れています")
	ErrInvalidPaymentInfo          = errors.New("支払い情報が不正です")
	ErrPaymentAmountMismatch       = errors.New("支払額が予約合計と一致しません")
	ErrUserIDRequired              = errors.New("ユーザーIDは必須です")
	ErrPerformanceIDRequired       = errors.New("公演IDは必須です")
)

// SeatConflictError は他の予約と重複した座席を示す
// errors.Is(err, ErrSeatAlreadyTaken) が true になる
type SeatConflictError struct {
	SeatIDs []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSeatAlreadyTaken.Error(), strings.Join(e.SeatIDs, ","))
}

func (e *SeatConflictError) Is(target error) bool {
	return target == ErrSeatAlreadyTaken
}

// UnknownSeatError は会場に存在しない座席IDを示す
// errors.Is(err, ErrUnknownSeat) が true になる
type UnknownSeatError struct {
	SeatIDs []string
}

func (e *UnknownSeatError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownSeat.Error(), strings.Join(e.SeatIDs, ","))
}

func (e *UnknownSeatError) Is(target error) bool {
	return target == ErrUnknownSeat
}
