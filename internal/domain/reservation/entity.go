package reservation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/pricing"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// DefaultHoldTTL は支払い待ち予約の保持期間（デフォルト15分）
const DefaultHoldTTL = 15 * time.Minute

// Seat は予約に含まれる座席（明細）を表す
type Seat struct {
	SeatID    string
	SeatType  venue.SeatType
	UnitPrice decimal.Decimal
}

// Reservation は予約集約を表す
type Reservation struct {
	ID            string
	UserID        string
	PerformanceID string
	Seats         []Seat
	TierPrices    map[venue.SeatType]decimal.Decimal
	TotalPrice    decimal.Decimal
	Status        Status
	Payment       *PaymentInfo
	ExpiresAt     time.Time
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	Audit         audit.Info
}

// SeatTypeResolver は座席IDから座席種別を引く（venue.Venue が満たす）
type SeatTypeResolver interface {
	SeatTypeOf(seatID string) (venue.SeatType, bool)
}

// UnitPricer は座席種別の単価を引く（pricing.Pricing が満たす）
type UnitPricer interface {
	UnitPriceFor(t venue.SeatType) (decimal.Decimal, bool)
}

// BookParams は予約作成の入力
type BookParams struct {
	UserID        string
	PerformanceID string
	SeatIDs       []string
	Venue         SeatTypeResolver
	Pricing       UnitPricer
	Now           time.Time
	HoldTTL       time.Duration
}

// Book は座席種別と単価から価格を計算して新しい予約を作成する
// 価格の集計は座席の並び順に依存しない
func Book(p BookParams) (*Reservation, error) {
	if p.UserID == "" {
		return nil, ErrUserIDRequired
	}
	if p.PerformanceID == "" {
		return nil, ErrPerformanceIDRequired
	}
	if len(p.SeatIDs) == 0 {
		return nil, ErrEmptySeatSelection
	}

	seen := make(map[string]struct{}, len(p.SeatIDs))
	var unknown []string
	seats := make([]Seat, 0, len(p.SeatIDs))
	for _, id := range p.SeatIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeatSelection, id)
		}
		seen[id] = struct{}{}

		st, ok := p.Venue.SeatTypeOf(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		price, ok := p.Pricing.UnitPriceFor(st)
		if !ok {
			return nil, fmt.Errorf("%w: %s", pricing.ErrPriceNotDefined, st)
		}
		seats = append(seats, Seat{SeatID: id, SeatType: st, UnitPrice: price})
	}
	if len(unknown) > 0 {
		return nil, &UnknownSeatError{SeatIDs: unknown}
	}

	tiers, total := sumTiers(seats)
	r := &Reservation{
		UserID:        p.UserID,
		PerformanceID: p.PerformanceID,
		Seats:         seats,
		TierPrices:    tiers,
		TotalPrice:    total,
		Status:        StatusPending,
	}
	if p.HoldTTL > 0 {
		r.ExpiresAt = p.Now.Add(p.HoldTTL)
	}
	return r, nil
}

// ReconstructParams は永続化済み予約の復元入力
type ReconstructParams struct {
	ID            string
	UserID        string
	PerformanceID string
	Seats         []Seat
	TotalPrice    decimal.Decimal
	Status        Status
	Payment       *PaymentInfo
	ExpiresAt     time.Time
	ConfirmedAt   *time.Time
	CancelledAt   *time.Time
	Audit         audit.Info
}

// Reconstruct は永続化済みの状態から予約を復元する（検証なし）
func Reconstruct(p ReconstructParams) *Reservation {
	tiers, _ := sumTiers(p.Seats)
	return &Reservation{
		ID:            p.ID,
		UserID:        p.UserID,
		PerformanceID: p.PerformanceID,
		Seats:         p.Seats,
		TierPrices:    tiers,
		TotalPrice:    p.TotalPrice,
		Status:        p.Status,
		Payment:       p.Payment,
		ExpiresAt:     p.ExpiresAt,
		ConfirmedAt:   p.ConfirmedAt,
		CancelledAt:   p.CancelledAt,
		Audit:         p.Audit,
	}
}

func sumTiers(seats []Seat) (map[venue.SeatType]decimal.Decimal, decimal.Decimal) {
	tiers := make(map[venue.SeatType]decimal.Decimal)
	total := decimal.Zero
	for _, s := range seats {
		tiers[s.SeatType] = tiers[s.SeatType].Add(s.UnitPrice)
		total = total.Add(s.UnitPrice)
	}
	return tiers, total
}

// NormalPrice は NORMAL 席の小計を返す
func (r *Reservation) NormalPrice() decimal.Decimal {
	return r.TierPrice(venue.SeatTypeNormal)
}

// VIPPrice は VIP 席の小計を返す
func (r *Reservation) VIPPrice() decimal.Decimal {
	return r.TierPrice(venue.SeatTypeVIP)
}

// TierPrice は指定した座席種別の小計を返す
func (r *Reservation) TierPrice(t venue.SeatType) decimal.Decimal {
	if p, ok := r.TierPrices[t]; ok {
		return p
	}
	return decimal.Zero
}

// SeatIDs は予約座席のIDを予約時の順序で返す
func (r *Reservation) SeatIDs() []string {
	ids := make([]string, len(r.Seats))
	for i, s := range r.Seats {
		ids[i] = s.SeatID
	}
	return ids
}

// IsActive は座席を確保している（キャンセルされていない）かを返す
func (r *Reservation) IsActive() bool {
	return r.Status != StatusCancelled
}

// IsPending は予約が支払い待ちかを返す
func (r *Reservation) IsPending() bool {
	return r.Status == StatusPending
}

// IsExpired は支払い待ちのまま保持期限を過ぎたかを返す
func (r *Reservation) IsExpired(now time.Time) bool {
	if r.Status != StatusPending || r.ExpiresAt.IsZero() {
		return false
	}
	return now.After(r.ExpiresAt)
}

// AttachPayment は支払い情報を紐付けて予約を確定する
// 決済自体の成否は外部の決済サービスの責務
func (r *Reservation) AttachPayment(info PaymentInfo, now time.Time) error {
	switch r.Status {
	case StatusCancelled:
		return ErrReservationAlreadyCancelled
	case StatusConfirmed:
		return ErrReservationAlreadyConfirmed
	}
	if r.IsExpired(now) {
		return ErrReservationExpired
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if !info.Amount.Equal(r.TotalPrice) {
		return fmt.Errorf("%w: 支払額=%s 合計=%s", ErrPaymentAmountMismatch, info.Amount, r.TotalPrice)
	}
	if info.PaidAt.IsZero() {
		info.PaidAt = now
	}
	r.Payment = &info
	r.Status = StatusConfirmed
	r.ConfirmedAt = &now
	return nil
}

// Cancel は予約をキャンセルする（CANCELLED は終端状態）
func (r *Reservation) Cancel(now time.Time) error {
	if r.Status == StatusCancelled {
		return ErrReservationAlreadyCancelled
	}
	r.Status = StatusCancelled
	r.CancelledAt = &now
	return nil
}
