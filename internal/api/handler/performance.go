package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/application"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
)

type PerformanceHandler struct {
	service PerformanceServiceInterface
}

func NewPerformanceHandler(s PerformanceServiceInterface) *PerformanceHandler {
	return &PerformanceHandler{service: s}
}

type CreatePerformanceRequest struct {
	Title      string                     `json:"title" validate:"required,max=255" example:"夜公演"`
	StartAt    time.Time                  `json:"start_at"`
	EndAt      time.Time                  `json:"end_at"`
	UnitPrices map[string]decimal.Decimal `json:"unit_prices" validate:"required,min=1"`
}

type PerformanceResponse struct {
	ID         string                     `json:"id"`
	VenueID    string                     `json:"venue_id"`
	Title      string                     `json:"title"`
	StartAt    time.Time                  `json:"start_at"`
	EndAt      time.Time                  `json:"end_at"`
	UnitPrices map[string]decimal.Decimal `json:"unit_prices"`
	CreatedAt  time.Time                  `json:"created_at"`
}

type AvailabilityResponse struct {
	PerformanceID  string `json:"performance_id"`
	AvailableSeats int    `json:"available_seats" example:"42"`
}

func toPerformanceResponse(p *performance.Performance) PerformanceResponse {
	prices := make(map[string]decimal.Decimal)
	for t, price := range p.Pricing.UnitPrices() {
		prices[string(t)] = price
	}
	return PerformanceResponse{
		ID: p.ID, VenueID: p.VenueID, Title: p.Title,
		StartAt: p.StartAt, EndAt: p.EndAt,
		UnitPrices: prices, CreatedAt: p.Audit.CreatedAt,
	}
}

// Create godoc
// @Summary 公演を作成
// @Description 会場で使われている全座席種別の単価が必要です
// @Tags performances
// @Accept json
// @Produce json
// @Param id path string true "会場ID"
// @Param request body CreatePerformanceRequest true "公演情報"
// @Success 201 {object} PerformanceResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /venues/{id}/performances [post]
func (h *PerformanceHandler) Create(c echo.Context) error {
	var req CreatePerformanceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.service.CreatePerformance(c.Request().Context(), application.CreatePerformanceInput{
		VenueID:    c.Param("id"),
		Title:      req.Title,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		UnitPrices: req.UnitPrices,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toPerformanceResponse(p))
}

// GetByID godoc
// @Summary 公演を取得
// @Tags performances
// @Produce json
// @Param id path string true "公演ID"
// @Success 200 {object} PerformanceResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /performances/{id} [get]
func (h *PerformanceHandler) GetByID(c echo.Context) error {
	p, err := h.service.GetPerformance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPerformanceResponse(p))
}

// ListByVenue godoc
// @Summary 会場の公演一覧を取得
// @Tags performances
// @Produce json
// @Param id path string true "会場ID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} PerformanceResponse
// @Router /venues/{id}/performances [get]
func (h *PerformanceHandler) ListByVenue(c echo.Context) error {
	limit, offset := pageParams(c)
	performances, err := h.service.ListPerformances(c.Request().Context(), c.Param("id"), limit, offset)
	if err != nil {
		return err
	}
	resp := make([]PerformanceResponse, len(performances))
	for i, p := range performances {
		resp[i] = toPerformanceResponse(p)
	}
	return c.JSON(http.StatusOK, resp)
}

// Availability godoc
// @Summary 空席数を取得
// @Description 会場の座席数から確保済みの座席数を引いた値を返します（短時間キャッシュされます）
// @Tags performances
// @Produce json
// @Param id path string true "公演ID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /performances/{id}/availability [get]
func (h *PerformanceHandler) Availability(c echo.Context) error {
	id := c.Param("id")
	count, err := h.service.CountAvailableSeats(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{PerformanceID: id, AvailableSeats: count})
}
