package application

import (
	"context"
	"fmt"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/clock"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ReservationService は予約のユースケースを提供する
// 座席の確保と解放は ReservationLedger に委譲する
type ReservationService struct {
	ledger          *ReservationLedger
	reservationRepo reservation.Repository
	performanceRepo performance.Repository
	venueRepo       venue.Repository
	clock           clock.Clock
}

func NewReservationService(
	ledger *ReservationLedger,
	rr reservation.Repository,
	pr performance.Repository,
	vr venue.Repository,
	c clock.Clock,
) *ReservationService {
	if c == nil {
		c = clock.NewSystem()
	}
	return &ReservationService{
		ledger:          ledger,
		reservationRepo: rr,
		performanceRepo: pr,
		venueRepo:       vr,
		clock:           c,
	}
}

type CreateReservationInput struct {
	PerformanceID string
	UserID        string
	SeatIDs       []string
}

// CreateReservation は公演と会場を解決してから座席を確保する
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	perf, err := s.performanceRepo.GetByID(ctx, input.PerformanceID)
	if err != nil {
		return nil, fmt.Errorf("公演取得に失敗: %w", err)
	}
	if !perf.IsBookingOpen(s.clock.Now()) {
		return nil, performance.ErrBookingClosed
	}

	v, err := s.venueRepo.GetByID(ctx, perf.VenueID)
	if err != nil {
		return nil, fmt.Errorf("会場取得に失敗: %w", err)
	}

	return s.ledger.Reserve(ctx, ReserveInput{
		PerformanceID: perf.ID,
		UserID:        input.UserID,
		SeatIDs:       input.SeatIDs,
		Venue:         v,
		Pricing:       perf.Pricing,
	})
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.reservationRepo.GetByID(ctx, id)
}

func (s *ReservationService) GetUserReservations(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error) {
	limit, offset = normalizePage(limit, offset)
	return s.reservationRepo.GetByUserID(ctx, userID, limit, offset)
}

func (s *ReservationService) GetPerformanceReservations(ctx context.Context, performanceID string, limit, offset int) ([]*reservation.Reservation, error) {
	if _, err := s.performanceRepo.GetByID(ctx, performanceID); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	return s.reservationRepo.GetByPerformanceID(ctx, performanceID, limit, offset)
}

type ConfirmReservationInput struct {
	ReservationID string
	Payment       reservation.PaymentInfo
}

// ConfirmReservation は支払い情報を紐付けて予約を確定する
func (s *ReservationService) ConfirmReservation(ctx context.Context, input ConfirmReservationInput) (*reservation.Reservation, error) {
	return s.ledger.AttachPayment(ctx, input.ReservationID, input.Payment)
}

// CancelReservation は予約をキャンセルして座席を解放する
func (s *ReservationService) CancelReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.ledger.Release(ctx, id)
}

// CancelExpiredReservations は保持期限を過ぎた支払い待ち予約を解放する
func (s *ReservationService) CancelExpiredReservations(ctx context.Context) (int, error) {
	return s.ledger.ReleaseExpired(ctx, s.clock.Now())
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
