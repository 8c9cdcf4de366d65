package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

type VenueService struct {
	venueRepo venue.Repository
}

func NewVenueService(venueRepo venue.Repository) *VenueService {
	return &VenueService{venueRepo: venueRepo}
}

type CreateVenueSeatInput struct {
	SeatNumber string
	SeatType   string
}

type CreateVenueInput struct {
	BusinessUserID   string
	Name             string
	Type             string
	RunningStartedAt string
	RunningEndedAt   string
	Seats            []CreateVenueSeatInput
}

// CreateVenue は会場を検証して保存する。座席IDはここで採番する
func (s *VenueService) CreateVenue(ctx context.Context, input CreateVenueInput) (*venue.Venue, error) {
	venueType, err := venue.ParseType(input.Type)
	if err != nil {
		return nil, err
	}
	start, err := venue.ParseTimeOfDay(input.RunningStartedAt)
	if err != nil {
		return nil, err
	}
	end, err := venue.ParseTimeOfDay(input.RunningEndedAt)
	if err != nil {
		return nil, err
	}

	seats := make([]venue.Seat, 0, len(input.Seats))
	for _, in := range input.Seats {
		seatType, err := venue.ParseSeatType(in.SeatType)
		if err != nil {
			return nil, err
		}
		seats = append(seats, venue.Seat{
			ID:         uuid.NewString(),
			SeatNumber: in.SeatNumber,
			SeatType:   seatType,
		})
	}

	v, err := venue.Create(venue.CreateParams{
		BusinessUserID:   input.BusinessUserID,
		Name:             input.Name,
		Type:             venueType,
		RunningStartedAt: start,
		RunningEndedAt:   end,
		Seats:            seats,
	})
	if err != nil {
		return nil, err
	}
	if err := s.venueRepo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("会場作成に失敗しました: %w", err)
	}
	return v, nil
}

func (s *VenueService) GetVenue(ctx context.Context, id string) (*venue.Venue, error) {
	return s.venueRepo.GetByID(ctx, id)
}

func (s *VenueService) ListVenues(ctx context.Context, businessUserID string, limit, offset int) ([]*venue.Venue, error) {
	limit, offset = normalizePage(limit, offset)
	return s.venueRepo.ListByBusinessUser(ctx, businessUserID, limit, offset)
}
