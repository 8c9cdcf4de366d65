package venue

import "errors"

// Venue ドメインのエラー定義
var (
	ErrVenueNotFound      = errors.New("会場が見つかりません")
	ErrInvalidTimeRange   = errors.New("営業開始時刻は終了時刻より前である必要があります")
	ErrDuplicateVenueSeat = errors.New("座席番号が重複しています")
	ErrInvalidSeat        = errors.New("座席IDと座席番号は必須です")
	ErrInvalidSeatType    = errors.New("座席種別が不正です")
	ErrInvalidVenueType   = errors.New("会場種別が不正です")
	ErrInvalidTimeOfDay   = errors.New("時刻の形式が不正です")
)
