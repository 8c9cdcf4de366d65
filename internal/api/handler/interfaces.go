package handler

import (
	"context"

	"github.com/sanosuguru/venue-seat-reservation/internal/application"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

// VenueServiceInterface は会場サービスのインターフェース
type VenueServiceInterface interface {
	CreateVenue(ctx context.Context, input application.CreateVenueInput) (*venue.Venue, error)
	GetVenue(ctx context.Context, id string) (*venue.Venue, error)
	ListVenues(ctx context.Context, businessUserID string, limit, offset int) ([]*venue.Venue, error)
}

// PerformanceServiceInterface は公演サービスのインターフェース
type PerformanceServiceInterface interface {
	CreatePerformance(ctx context.Context, input application.CreatePerformanceInput) (*performance.Performance, error)
	GetPerformance(ctx context.Context, id string) (*performance.Performance, error)
	ListPerformances(ctx context.Context, venueID string, limit, offset int) ([]*performance.Performance, error)
	CountAvailableSeats(ctx context.Context, performanceID string) (int, error)
}

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	GetUserReservations(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error)
	GetPerformanceReservations(ctx context.Context, performanceID string, limit, offset int) ([]*reservation.Reservation, error)
	ConfirmReservation(ctx context.Context, input application.ConfirmReservationInput) (*reservation.Reservation, error)
	CancelReservation(ctx context.Context, id string) (*reservation.Reservation, error)
}
