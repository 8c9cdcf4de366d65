package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/application"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
)

type ReservationHandler struct {
	service ReservationServiceInterface
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s}
}

// 座席が空の場合は EMPTY_SEAT_SELECTION として返すため seat_ids は検証しない
type CreateReservationRequest struct {
	PerformanceID string   `json:"performance_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	SeatIDs       []string `json:"seat_ids" example:"seat-A1,seat-B1"`
}

type ConfirmReservationRequest struct {
	PaymentKey string          `json:"payment_key" validate:"required" example:"pay_20260301_0001"`
	Method     string          `json:"method" example:"CARD"`
	Amount     decimal.Decimal `json:"amount" example:"30000"`
}

type ReservationSeatResponse struct {
	SeatID    string          `json:"seat_id"`
	SeatType  string          `json:"seat_type" example:"VIP"`
	UnitPrice decimal.Decimal `json:"unit_price" example:"20000"`
}

type PaymentResponse struct {
	PaymentKey string          `json:"payment_key"`
	Method     string          `json:"method,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paid_at"`
}

type ReservationResponse struct {
	ID            string                    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	PerformanceID string                    `json:"performance_id"`
	UserID        string                    `json:"user_id" example:"user-123"`
	SeatIDs       []string                  `json:"seat_ids" example:"seat-A1,seat-B1"`
	Seats         []ReservationSeatResponse `json:"seats"`
	NormalPrice   decimal.Decimal           `json:"normal_price" example:"10000"`
	VIPPrice      decimal.Decimal           `json:"vip_price" example:"20000"`
	TotalPrice    decimal.Decimal           `json:"total_price" example:"30000"`
	Status        string                    `json:"status" example:"pending"`
	Payment       *PaymentResponse          `json:"payment,omitempty"`
	ExpiresAt     *time.Time                `json:"expires_at,omitempty"`
	ConfirmedAt   *time.Time                `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time                `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID: r.ID, PerformanceID: r.PerformanceID, UserID: r.UserID,
		SeatIDs: r.SeatIDs(), Seats: make([]ReservationSeatResponse, len(r.Seats)),
		NormalPrice: r.NormalPrice(), VIPPrice: r.VIPPrice(), TotalPrice: r.TotalPrice,
		Status:      string(r.Status),
		ConfirmedAt: r.ConfirmedAt, CancelledAt: r.CancelledAt,
		CreatedAt: r.Audit.CreatedAt,
	}
	for i, s := range r.Seats {
		resp.Seats[i] = ReservationSeatResponse{SeatID: s.SeatID, SeatType: string(s.SeatType), UnitPrice: s.UnitPrice}
	}
	if r.Payment != nil {
		resp.Payment = &PaymentResponse{
			PaymentKey: r.Payment.PaymentKey, Method: r.Payment.Method,
			Amount: r.Payment.Amount, PaidAt: r.Payment.PaidAt,
		}
	}
	if r.IsPending() && !r.ExpiresAt.IsZero() {
		expiresAt := r.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

func toReservationResponses(rs []*reservation.Reservation) []ReservationResponse {
	resp := make([]ReservationResponse, len(rs))
	for i, r := range rs {
		resp[i] = toReservationResponse(r)
	}
	return resp
}

// Create godoc
// @Summary 予約を作成
// @Description 公演の座席をまとめて確保します。1席でも確保済みなら何も確保しません
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "座席が既に予約済み"
// @Failure 503 {object} api.ErrorResponse "公演のロック待ちがタイムアウト"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	var req CreateReservationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.service.CreateReservation(c.Request().Context(), application.CreateReservationInput{
		PerformanceID: req.PerformanceID, UserID: userID, SeatIDs: req.SeatIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetUserReservations godoc
// @Summary ユーザーの予約一覧を取得
// @Description ログインユーザーの予約一覧を取得します
// @Tags reservations
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /reservations [get]
func (h *ReservationHandler) GetUserReservations(c echo.Context) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	reservations, err := h.service.GetUserReservations(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponses(reservations))
}

// GetPerformanceReservations godoc
// @Summary 公演の予約一覧を取得
// @Tags reservations
// @Produce json
// @Param id path string true "公演ID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /performances/{id}/reservations [get]
func (h *ReservationHandler) GetPerformanceReservations(c echo.Context) error {
	limit, offset := pageParams(c)
	reservations, err := h.service.GetPerformanceReservations(c.Request().Context(), c.Param("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponses(reservations))
}

// Confirm godoc
// @Summary 予約を確定
// @Description 外部決済の結果を紐付けて支払い待ちの予約を確定します
// @Tags reservations
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body ConfirmReservationRequest true "支払い情報"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c echo.Context) error {
	var req ConfirmReservationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.service.ConfirmReservation(c.Request().Context(), application.ConfirmReservationInput{
		ReservationID: c.Param("id"),
		Payment: reservation.PaymentInfo{
			PaymentKey: req.PaymentKey,
			Method:     req.Method,
			Amount:     req.Amount,
		},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、座席を即時に解放します
// @Tags reservations
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	r, err := h.service.CancelReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}
