package performance

import "errors"

// Performance ドメインのエラー定義
var (
	ErrPerformanceNotFound    = errors.New("公演が見つかりません")
	ErrTitleRequired          = errors.New("公演名は必須です")
	ErrVenueIDRequired        = errors.New("会場IDは必須です")
	ErrInvalidPerformanceTime = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrBookingClosed          = errors.New("公演の予約受付期間外です")
)
