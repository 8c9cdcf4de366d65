package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/venue-seat-reservation/internal/application"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

type VenueHandler struct {
	service VenueServiceInterface
}

func NewVenueHandler(s VenueServiceInterface) *VenueHandler {
	return &VenueHandler{service: s}
}

type CreateVenueSeatRequest struct {
	SeatNumber string `json:"seat_number" validate:"required" example:"A-1"`
	SeatType   string `json:"seat_type" validate:"required" example:"NORMAL"`
}

type CreateVenueRequest struct {
	Name             string                   `json:"name" validate:"required,max=255" example:"サンプルホール"`
	Type             string                   `json:"type" validate:"required" example:"CONCERT_HALL"`
	RunningStartedAt string                   `json:"running_started_at" validate:"required" example:"10:00:00"`
	RunningEndedAt   string                   `json:"running_ended_at" validate:"required" example:"22:00:00"`
	Seats            []CreateVenueSeatRequest `json:"seats" validate:"dive"`
}

type VenueSeatResponse struct {
	ID         string `json:"id"`
	SeatNumber string `json:"seat_number" example:"A-1"`
	SeatType   string `json:"seat_type" example:"NORMAL"`
}

type VenueResponse struct {
	ID               string              `json:"id"`
	BusinessUserID   string              `json:"business_user_id"`
	Name             string              `json:"name"`
	Type             string              `json:"type"`
	RunningStartedAt string              `json:"running_started_at" example:"10:00:00"`
	RunningEndedAt   string              `json:"running_ended_at" example:"22:00:00"`
	Capacity         int                 `json:"capacity" example:"100"`
	Seats            []VenueSeatResponse `json:"seats"`
	CreatedAt        time.Time           `json:"created_at"`
}

func toVenueResponse(v *venue.Venue) VenueResponse {
	seats := v.Seats()
	resp := VenueResponse{
		ID: v.ID, BusinessUserID: v.BusinessUserID, Name: v.Name, Type: string(v.Type),
		RunningStartedAt: v.RunningStartedAt.String(), RunningEndedAt: v.RunningEndedAt.String(),
		Capacity: len(seats), Seats: make([]VenueSeatResponse, len(seats)),
		CreatedAt: v.Audit.CreatedAt,
	}
	for i, s := range seats {
		resp.Seats[i] = VenueSeatResponse{ID: s.ID, SeatNumber: s.SeatNumber, SeatType: string(s.SeatType)}
	}
	return resp
}

// Create godoc
// @Summary 会場を作成
// @Description 座席表付きで会場を登録します。座席番号は会場内で一意です
// @Tags venues
// @Accept json
// @Produce json
// @Param X-User-ID header string true "事業者ユーザーID"
// @Param request body CreateVenueRequest true "会場情報"
// @Success 201 {object} VenueResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /venues [post]
func (h *VenueHandler) Create(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	var req CreateVenueRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	input := application.CreateVenueInput{
		BusinessUserID:   userID,
		Name:             req.Name,
		Type:             req.Type,
		RunningStartedAt: req.RunningStartedAt,
		RunningEndedAt:   req.RunningEndedAt,
		Seats:            make([]application.CreateVenueSeatInput, len(req.Seats)),
	}
	for i, s := range req.Seats {
		input.Seats[i] = application.CreateVenueSeatInput{SeatNumber: s.SeatNumber, SeatType: s.SeatType}
	}

	v, err := h.service.CreateVenue(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toVenueResponse(v))
}

// GetByID godoc
// @Summary 会場を取得
// @Tags venues
// @Produce json
// @Param id path string true "会場ID"
// @Success 200 {object} VenueResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /venues/{id} [get]
func (h *VenueHandler) GetByID(c echo.Context) error {
	v, err := h.service.GetVenue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toVenueResponse(v))
}

// List godoc
// @Summary 事業者の会場一覧を取得
// @Tags venues
// @Produce json
// @Param X-User-ID header string true "事業者ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} VenueResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /venues [get]
func (h *VenueHandler) List(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	venues, err := h.service.ListVenues(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]VenueResponse, len(venues))
	for i, v := range venues {
		resp[i] = toVenueResponse(v)
	}
	return c.JSON(http.StatusOK, resp)
}
