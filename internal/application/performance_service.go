package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/pricing"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
	redisinfra "github.com/sanosuguru/venue-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/venue-seat-reservation/internal/pkg/metrics"
)

const defaultAvailabilityTTL = 30 * time.Second

type PerformanceService struct {
	performanceRepo performance.Repository
	venueRepo       venue.Repository
	reservationRepo reservation.Repository
	cache           AvailabilityCache
	cacheTTL        time.Duration
	metrics         *metrics.Metrics
}

func NewPerformanceService(pr performance.Repository, vr venue.Repository, rr reservation.Repository, cache AvailabilityCache, cacheTTL time.Duration) *PerformanceService {
	if cacheTTL <= 0 {
		cacheTTL = defaultAvailabilityTTL
	}
	return &PerformanceService{
		performanceRepo: pr,
		venueRepo:       vr,
		reservationRepo: rr,
		cache:           cache,
		cacheTTL:        cacheTTL,
	}
}

// WithMetrics は空席数キャッシュの参照結果を記録するメトリクスを設定する
func (s *PerformanceService) WithMetrics(m *metrics.Metrics) *PerformanceService {
	s.metrics = m
	return s
}

type CreatePerformanceInput struct {
	VenueID    string
	Title      string
	StartAt    time.Time
	EndAt      time.Time
	UnitPrices map[string]decimal.Decimal
}

// CreatePerformance は会場の全座席種別に単価がある場合だけ公演を作成する
func (s *PerformanceService) CreatePerformance(ctx context.Context, input CreatePerformanceInput) (*performance.Performance, error) {
	prices := make(map[venue.SeatType]decimal.Decimal, len(input.UnitPrices))
	for raw, price := range input.UnitPrices {
		seatType, err := venue.ParseSeatType(raw)
		if err != nil {
			return nil, err
		}
		prices[seatType] = price
	}
	table, err := pricing.New(prices)
	if err != nil {
		return nil, err
	}

	p := performance.NewPerformance(input.VenueID, input.Title, input.StartAt, input.EndAt, table)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	v, err := s.venueRepo.GetByID(ctx, input.VenueID)
	if err != nil {
		return nil, fmt.Errorf("会場取得に失敗: %w", err)
	}
	if err := table.Covers(v.SeatTypesInUse()); err != nil {
		return nil, err
	}

	if err := s.performanceRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("公演作成に失敗しました: %w", err)
	}
	return p, nil
}

func (s *PerformanceService) GetPerformance(ctx context.Context, id string) (*performance.Performance, error) {
	return s.performanceRepo.GetByID(ctx, id)
}

func (s *PerformanceService) ListPerformances(ctx context.Context, venueID string, limit, offset int) ([]*performance.Performance, error) {
	limit, offset = normalizePage(limit, offset)
	return s.performanceRepo.ListByVenue(ctx, venueID, limit, offset)
}

// CountAvailableSeats は公演の空席数（会場の座席数 - 確保済み座席数）を返す
func (s *PerformanceService) CountAvailableSeats(ctx context.Context, performanceID string) (int, error) {
	// キャッシュから取得を試みる
	if s.cache != nil {
		count, err := s.cache.GetAvailableCount(ctx, performanceID)
		switch {
		case err == nil:
			s.countCache("hit")
			logger.Debug("キャッシュヒット", zap.String("performance_id", performanceID), zap.Int("count", count))
			return count, nil
		case errors.Is(err, redisinfra.ErrCacheMiss):
			s.countCache("miss")
		default:
			s.countCache("error")
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	p, err := s.performanceRepo.GetByID(ctx, performanceID)
	if err != nil {
		return 0, err
	}
	v, err := s.venueRepo.GetByID(ctx, p.VenueID)
	if err != nil {
		return 0, fmt.Errorf("会場取得に失敗: %w", err)
	}
	claimed, err := s.reservationRepo.CountClaimedSeats(ctx, performanceID)
	if err != nil {
		return 0, err
	}
	count := v.Capacity() - claimed

	if s.cache != nil {
		if cacheErr := s.cache.SetAvailableCount(ctx, performanceID, count, s.cacheTTL); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return count, nil
}

func (s *PerformanceService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.AvailabilityCacheTotal.WithLabelValues(result).Inc()
	}
}
