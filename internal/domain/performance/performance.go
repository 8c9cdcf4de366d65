package performance

import (
	"time"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/pricing"
)

// Performance は会場で開催される公演を表す
// 座席の排他制御は公演単位で行う
type Performance struct {
	ID      string
	VenueID string
	Title   string
	StartAt time.Time
	EndAt   time.Time
	Pricing pricing.Pricing
	Audit   audit.Info
}

// NewPerformance は新しい公演を作成する
func NewPerformance(venueID, title string, startAt, endAt time.Time, p pricing.Pricing) *Performance {
	return &Performance{
		VenueID: venueID,
		Title:   title,
		StartAt: startAt,
		EndAt:   endAt,
		Pricing: p,
	}
}

// Validate は公演の検証を行う
func (p *Performance) Validate() error {
	if p.Title == "" {
		return ErrTitleRequired
	}
	if p.VenueID == "" {
		return ErrVenueIDRequired
	}
	if !p.StartAt.Before(p.EndAt) {
		return ErrInvalidPerformanceTime
	}
	return nil
}

// IsBookingOpen は予約受付中かを返す（開演前まで）
func (p *Performance) IsBookingOpen(now time.Time) bool {
	return now.Before(p.StartAt)
}
