package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/pricing"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// testVenue は A1, A2 (NORMAL) と B1 (VIP) の3席を持つ会場
func testVenue(t *testing.T) *venue.Venue {
	t.Helper()
	v, err := venue.Create(venue.CreateParams{
		ID:               "venue-1",
		BusinessUserID:   "biz-1",
		Name:             "テストホール",
		Type:             venue.TypeConcertHall,
		RunningStartedAt: venue.MustTimeOfDay(10, 0, 0),
		RunningEndedAt:   venue.MustTimeOfDay(12, 0, 0),
		Seats: []venue.Seat{
			{ID: "A1", SeatNumber: "A1", SeatType: venue.SeatTypeNormal},
			{ID: "A2", SeatNumber: "A2", SeatType: venue.SeatTypeNormal},
			{ID: "B1", SeatNumber: "B1", SeatType: venue.SeatTypeVIP},
		},
	})
	require.NoError(t, err)
	return v
}

func testPricing() pricing.Pricing {
	return pricing.MustNew(map[venue.SeatType]decimal.Decimal{
		venue.SeatTypeNormal: decimal.NewFromInt(10000),
		venue.SeatTypeVIP:    decimal.NewFromInt(20000),
	})
}

func testPerformance(id, venueID string) *performance.Performance {
	p := performance.NewPerformance(venueID, "テスト公演", testNow.Add(24*time.Hour), testNow.Add(26*time.Hour), testPricing())
	p.ID = id
	return p
}
