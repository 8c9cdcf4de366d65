package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/pricing"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

const performanceColumns = `id, venue_id, title, start_at, end_at, created_at, created_by, last_modified_at, last_modified_by`

type performanceRow struct {
	ID             string    `db:"id"`
	VenueID        string    `db:"venue_id"`
	Title          string    `db:"title"`
	StartAt        time.Time `db:"start_at"`
	EndAt          time.Time `db:"end_at"`
	CreatedAt      time.Time `db:"created_at"`
	CreatedBy      string    `db:"created_by"`
	LastModifiedAt time.Time `db:"last_modified_at"`
	LastModifiedBy string    `db:"last_modified_by"`
}

type priceRow struct {
	PerformanceID string          `db:"performance_id"`
	SeatType      string          `db:"seat_type"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
}

func (r *performanceRow) toEntity(prices []priceRow) (*performance.Performance, error) {
	unitPrices := make(map[venue.SeatType]decimal.Decimal, len(prices))
	for _, p := range prices {
		unitPrices[venue.SeatType(p.SeatType)] = p.UnitPrice
	}
	table, err := pricing.New(unitPrices)
	if err != nil {
		return nil, err
	}
	return &performance.Performance{
		ID:      r.ID,
		VenueID: r.VenueID,
		Title:   r.Title,
		StartAt: r.StartAt,
		EndAt:   r.EndAt,
		Pricing: table,
		Audit: audit.Info{
			CreatedAt:      r.CreatedAt,
			CreatedBy:      r.CreatedBy,
			LastModifiedAt: r.LastModifiedAt,
			LastModifiedBy: r.LastModifiedBy,
		},
	}, nil
}

// PerformanceRepository は公演リポジトリのPostgreSQL実装
type PerformanceRepository struct {
	db *sqlx.DB
}

func NewPerformanceRepository(db *sqlx.DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// Create は公演・単価表・排他用のロック行を1トランザクションで保存する
func (r *PerformanceRepository) Create(ctx context.Context, p *performance.Performance) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO performances (venue_id, title, start_at, end_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, last_modified_at
	`
	var createdAt, modifiedAt time.Time
	if err := tx.QueryRowxContext(ctx, query, p.VenueID, p.Title, p.StartAt, p.EndAt).Scan(&p.ID, &createdAt, &modifiedAt); err != nil {
		if pqErr, ok := pqCode(err); ok && pqErr.Code == "23503" {
			return venue.ErrVenueNotFound
		}
		return fmt.Errorf("公演作成に失敗しました: %w", err)
	}

	for seatType, price := range p.Pricing.UnitPrices() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO performance_prices (performance_id, seat_type, unit_price) VALUES ($1, $2, $3)`,
			p.ID, string(seatType), price,
		); err != nil {
			return fmt.Errorf("単価登録に失敗: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO performance_claims (performance_id) VALUES ($1)`, p.ID); err != nil {
		return fmt.Errorf("公演ロック行の作成に失敗: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	p.Audit = audit.Info{CreatedAt: createdAt, LastModifiedAt: modifiedAt}
	return nil
}

// GetByID はIDから公演を取得する
func (r *PerformanceRepository) GetByID(ctx context.Context, id string) (*performance.Performance, error) {
	var row performanceRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+performanceColumns+` FROM performances WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, performance.ErrPerformanceNotFound
		}
		return nil, fmt.Errorf("公演取得に失敗しました: %w", err)
	}
	list, err := r.withPrices(ctx, []performanceRow{row})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// ListByVenue は会場の公演一覧を開演順に取得する
func (r *PerformanceRepository) ListByVenue(ctx context.Context, venueID string, limit, offset int) ([]*performance.Performance, error) {
	query := `SELECT ` + performanceColumns + ` FROM performances WHERE venue_id = $1 ORDER BY start_at, id LIMIT $2 OFFSET $3`
	var rows []performanceRow
	if err := r.db.SelectContext(ctx, &rows, query, venueID, limit, offset); err != nil {
		if isInvalidText(err) {
			return []*performance.Performance{}, nil
		}
		return nil, fmt.Errorf("公演一覧取得に失敗しました: %w", err)
	}
	return r.withPrices(ctx, rows)
}

func (r *PerformanceRepository) withPrices(ctx context.Context, rows []performanceRow) ([]*performance.Performance, error) {
	if len(rows) == 0 {
		return []*performance.Performance{}, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var prices []priceRow
	query := `SELECT performance_id, seat_type, unit_price FROM performance_prices WHERE performance_id = ANY($1)`
	if err := r.db.SelectContext(ctx, &prices, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("単価取得に失敗: %w", err)
	}
	byPerformance := make(map[string][]priceRow, len(rows))
	for _, p := range prices {
		byPerformance[p.PerformanceID] = append(byPerformance[p.PerformanceID], p)
	}

	out := make([]*performance.Performance, len(rows))
	for i := range rows {
		p, err := rows[i].toEntity(byPerformance[rows[i].ID])
		if err != nil {
			return nil, fmt.Errorf("公演の復元に失敗: %w", err)
		}
		out[i] = p
	}
	return out, nil
}

var _ performance.Repository = (*PerformanceRepository)(nil)
