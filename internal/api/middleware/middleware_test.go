package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sanosuguru/venue-seat-reservation/internal/api"
	"github.com/sanosuguru/venue-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/metrics"
)

func TestSetupMiddleware(t *testing.T) {
	e := echo.New()
	SetupMiddleware(e, metrics.NewWithRegistry(prometheus.NewRegistry()))

	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "test")
	})

	t.Run("リクエストIDを採番する", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "test", rec.Body.String())
		assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
	})

	t.Run("既存のリクエストIDを維持する", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(echo.HeaderXRequestID, "existing-request-id")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "existing-request-id", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("CORSのプリフライトでユーザーIDヘッダーを許可する", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set(echo.HeaderOrigin, "http://example.com")
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
		req.Header.Set(echo.HeaderAccessControlRequestHeaders, handler.HeaderUserID)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), handler.HeaderUserID)
	})

	t.Run("メトリクスなしでも動作する", func(t *testing.T) {
		e := echo.New()
		SetupMiddleware(e, nil)
		e.GET("/test", func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name       string
		handler    echo.HandlerFunc
		wantStatus int
	}{
		{
			name:       "正常",
			handler:    func(c echo.Context) error { return c.String(http.StatusOK, "success") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "HTTPError",
			handler:    func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "bad request") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "ドメインエラー",
			handler:    func(c echo.Context) error { return reservation.ErrSeatAlreadyTaken },
			wantStatus: http.StatusConflict,
		},
		{
			name:       "サーバーエラー",
			handler:    func(c echo.Context) error { return c.String(http.StatusInternalServerError, "internal error") },
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = api.CustomHTTPErrorHandler
			e.Use(RequestLogger())
			e.GET("/test", tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(handler.HeaderUserID, "user-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestPrometheusMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	e := echo.New()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Use(PrometheusMiddleware(m))

	e.GET("/reservations/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return reservation.ErrReservationNotFound
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, id := range []string{"r1", "r2", "missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reservations/"+id, nil))
	}

	// ルートのパターンで集計される
	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/reservations/:id", "200")))
	// ドメインエラーはエラーハンドラーと同じステータスで記録される
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/reservations/:id", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}
