package reservation

import "time"

// EventType は予約のドメインイベント種別
type EventType string

const (
	EventReservationCreated   EventType = "ReservationCreated"
	EventReservationConfirmed EventType = "ReservationConfirmed"
	EventReservationCancelled EventType = "ReservationCancelled"
)

// Event は予約状態の変化を表すドメインイベント
type Event struct {
	Type          EventType `json:"type"`
	ReservationID string    `json:"reservation_id"`
	PerformanceID string    `json:"performance_id"`
	UserID        string    `json:"user_id"`
	SeatIDs       []string  `json:"seat_ids"`
	TotalPrice    string    `json:"total_price"`
	Status        Status    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent は予約の現在の状態からイベントを作成する
func NewEvent(t EventType, r *Reservation, at time.Time) Event {
	return Event{
		Type:          t,
		ReservationID: r.ID,
		PerformanceID: r.PerformanceID,
		UserID:        r.UserID,
		SeatIDs:       r.SeatIDs(),
		TotalPrice:    r.TotalPrice.String(),
		Status:        r.Status,
		OccurredAt:    at,
	}
}
