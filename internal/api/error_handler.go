package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/pricing"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/logger"
)

// エラーコード（クライアントが分岐に使う安定した識別子）
const (
	CodeInvalidRequest              = "INVALID_REQUEST"
	CodeUnauthorized                = "UNAUTHORIZED"
	CodeNotFound                    = "NOT_FOUND"
	CodeInternalError               = "INTERNAL_ERROR"
	CodeInvalidVenueTimeRange       = "INVALID_VENUE_TIME_RANGE"
	CodeDuplicateVenueSeat          = "DUPLICATE_VENUE_SEAT"
	CodeInvalidVenue                = "INVALID_VENUE"
	CodeVenueNotFound               = "VENUE_NOT_FOUND"
	CodeInvalidPerformance          = "INVALID_PERFORMANCE"
	CodePerformanceNotFound         = "PERFORMANCE_NOT_FOUND"
	CodeBookingClosed               = "BOOKING_CLOSED"
	CodeInvalidPricing              = "INVALID_PRICING"
	CodeUnknownSeat                 = "UNKNOWN_SEAT"
	CodeEmptySeatSelection          = "EMPTY_SEAT_SELECTION"
	CodeDuplicateSeatSelection      = "DUPLICATE_SEAT_SELECTION"
	CodeSeatAlreadyTaken            = "SEAT_ALREADY_TAKEN"
	CodeLockTimeout                 = "LOCK_TIMEOUT"
	CodeReservationNotFound         = "RESERVATION_NOT_FOUND"
	CodeReservationAlreadyCancelled = "RESERVATION_ALREADY_CANCELLED"
	CodeReservationAlreadyConfirmed = "RESERVATION_ALREADY_CONFIRMED"
	CodeReservationExpired          = "RESERVATION_EXPIRED"
	CodeInvalidPayment              = "INVALID_PAYMENT"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// 先頭から順に errors.Is で照合する
var domainErrors = []errorMapping{
	{venue.ErrInvalidTimeRange, http.StatusBadRequest, CodeInvalidVenueTimeRange},
	{venue.ErrDuplicateVenueSeat, http.StatusBadRequest, CodeDuplicateVenueSeat},
	{venue.ErrInvalidSeat, http.StatusBadRequest, CodeInvalidVenue},
	{venue.ErrInvalidSeatType, http.StatusBadRequest, CodeInvalidVenue},
	{venue.ErrInvalidVenueType, http.StatusBadRequest, CodeInvalidVenue},
	{venue.ErrInvalidTimeOfDay, http.StatusBadRequest, CodeInvalidVenue},
	{venue.ErrVenueNotFound, http.StatusNotFound, CodeVenueNotFound},

	{performance.ErrPerformanceNotFound, http.StatusNotFound, CodePerformanceNotFound},
	{performance.ErrTitleRequired, http.StatusBadRequest, CodeInvalidPerformance},
	{performance.ErrVenueIDRequired, http.StatusBadRequest, CodeInvalidPerformance},
	{performance.ErrInvalidPerformanceTime, http.StatusBadRequest, CodeInvalidPerformance},
	{performance.ErrBookingClosed, http.StatusConflict, CodeBookingClosed},

	{pricing.ErrPriceNotDefined, http.StatusBadRequest, CodeInvalidPricing},
	{pricing.ErrNegativePrice, http.StatusBadRequest, CodeInvalidPricing},

	{reservation.ErrUnknownSeat, http.StatusBadRequest, CodeUnknownSeat},
	{reservation.ErrEmptySeatSelection, http.StatusBadRequest, CodeEmptySeatSelection},
	{reservation.ErrDuplicateSeatSelection, http.StatusBadRequest, CodeDuplicateSeatSelection},
	{reservation.ErrUserIDRequired, http.StatusBadRequest, CodeInvalidRequest},
	{reservation.ErrPerformanceIDRequired, http.StatusBadRequest, CodeInvalidRequest},
	{reservation.ErrSeatAlreadyTaken, http.StatusConflict, CodeSeatAlreadyTaken},
	{reservation.ErrLockTimeout, http.StatusServiceUnavailable, CodeLockTimeout},
	{reservation.ErrReservationNotFound, http.StatusNotFound, CodeReservationNotFound},
	{reservation.ErrReservationAlreadyCancelled, http.StatusConflict, CodeReservationAlreadyCancelled},
	{reservation.ErrReservationAlreadyConfirmed, http.StatusConflict, CodeReservationAlreadyConfirmed},
	{reservation.ErrReservationExpired, http.StatusConflict, CodeReservationExpired},
	{reservation.ErrInvalidPaymentInfo, http.StatusBadRequest, CodeInvalidPayment},
	{reservation.ErrPaymentAmountMismatch, http.StatusBadRequest, CodeInvalidPayment},
}

// ResolveError はエラーをHTTPステータスとレスポンスに変換する
func ResolveError(err error) (int, ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
		return he.Code, ErrorResponse{Error: message, Code: codeForStatus(he.Code), Status: he.Code}
	}

	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return m.status, ErrorResponse{
				Error:   err.Error(),
				Code:    m.code,
				Status:  m.status,
				Details: seatDetails(err),
			}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error:  "内部サーバーエラー",
		Code:   CodeInternalError,
		Status: http.StatusInternalServerError,
	}
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, resp := ResolveError(err)

	// エラーログを出力（5xx エラーの場合）
	if status >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", status),
			zap.String("code", resp.Code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(status, resp); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

// seatDetails は衝突・不明座席のIDをレスポンスに載せる
func seatDetails(err error) []string {
	var conflict *reservation.SeatConflictError
	if errors.As(err, &conflict) {
		return conflict.SeatIDs
	}
	var unknown *reservation.UnknownSeatError
	if errors.As(err, &unknown) {
		return unknown.SeatIDs
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	}
	if status >= 500 {
		return CodeInternalError
	}
	return CodeInvalidRequest
}
