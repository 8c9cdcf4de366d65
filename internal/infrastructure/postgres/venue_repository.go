package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

const seatBatchSize = 1000

const venueColumns = `id, business_user_id, name, venue_type,
	running_started_at::text AS running_started_at, running_ended_at::text AS running_ended_at,
	created_at, created_by, last_modified_at, last_modified_by`

type venueRow struct {
	ID               string    `db:"id"`
	BusinessUserID   string    `db:"business_user_id"`
	Name             string    `db:"name"`
	VenueType        string    `db:"venue_type"`
	RunningStartedAt string    `db:"running_started_at"`
	RunningEndedAt   string    `db:"running_ended_at"`
	CreatedAt        time.Time `db:"created_at"`
	CreatedBy        string    `db:"created_by"`
	LastModifiedAt   time.Time `db:"last_modified_at"`
	LastModifiedBy   string    `db:"last_modified_by"`
}

type venueSeatRow struct {
	ID         string `db:"id"`
	VenueID    string `db:"venue_id"`
	SeatNumber string `db:"seat_number"`
	SeatType   string `db:"seat_type"`
}

// toEntity は永続化済みの行から会場を復元する
func (r *venueRow) toEntity(seats []venueSeatRow) (*venue.Venue, error) {
	start, err := venue.ParseTimeOfDay(r.RunningStartedAt)
	if err != nil {
		return nil, err
	}
	end, err := venue.ParseTimeOfDay(r.RunningEndedAt)
	if err != nil {
		return nil, err
	}
	domainSeats := make([]venue.Seat, len(seats))
	for i, s := range seats {
		domainSeats[i] = venue.Seat{ID: s.ID, SeatNumber: s.SeatNumber, SeatType: venue.SeatType(s.SeatType)}
	}
	return venue.Reconstruct(venue.ReconstructParams{
		ID:               r.ID,
		BusinessUserID:   r.BusinessUserID,
		Name:             r.Name,
		Type:             venue.Type(r.VenueType),
		RunningStartedAt: start,
		RunningEndedAt:   end,
		Seats:            domainSeats,
		Audit: audit.Info{
			CreatedAt:      r.CreatedAt,
			CreatedBy:      r.CreatedBy,
			LastModifiedAt: r.LastModifiedAt,
			LastModifiedBy: r.LastModifiedBy,
		},
	}), nil
}

// VenueRepository は会場リポジトリのPostgreSQL実装
type VenueRepository struct {
	db *sqlx.DB
}

func NewVenueRepository(db *sqlx.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

// Create は会場と座席を1トランザクションで保存する
func (r *VenueRepository) Create(ctx context.Context, v *venue.Venue) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO venues (business_user_id, name, venue_type, running_started_at, running_ended_at, created_by, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $1, $1)
		RETURNING id, created_at, last_modified_at
	`
	var createdAt, modifiedAt time.Time
	err = tx.QueryRowxContext(ctx, query,
		v.BusinessUserID, v.Name, string(v.Type), v.RunningStartedAt.String(), v.RunningEndedAt.String(),
	).Scan(&v.ID, &createdAt, &modifiedAt)
	if err != nil {
		return fmt.Errorf("会場作成に失敗しました: %w", err)
	}

	seats := v.Seats()
	for i := 0; i < len(seats); i += seatBatchSize {
		end := i + seatBatchSize
		if end > len(seats) {
			end = len(seats)
		}
		if err := insertSeatBatch(ctx, tx, v.ID, seats[i:end], i); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	v.Audit = audit.Info{
		CreatedAt:      createdAt,
		CreatedBy:      v.BusinessUserID,
		LastModifiedAt: modifiedAt,
		LastModifiedBy: v.BusinessUserID,
	}
	return nil
}

// insertSeatBatch はマルチバリューINSERTで座席を登録する
func insertSeatBatch(ctx context.Context, tx *sqlx.Tx, venueID string, seats []venue.Seat, offset int) error {
	if len(seats) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(seats)*5)
	placeholders := make([]string, 0, len(seats))
	for i, s := range seats {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5))
		args = append(args, s.ID, venueID, s.SeatNumber, string(s.SeatType), offset+i)
	}

	query := `INSERT INTO venue_seats (id, venue_id, seat_number, seat_type, position) VALUES ` + strings.Join(placeholders, ", ")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if pqErr, ok := pqCode(err); ok && pqErr.Code == codeUniqueViolation && pqErr.Constraint == venueSeatNumberUnique {
			return fmt.Errorf("%w: %s", venue.ErrDuplicateVenueSeat, pqErr.Detail)
		}
		return fmt.Errorf("座席一括作成に失敗: %w", err)
	}
	return nil
}

// GetByID はIDから会場を取得する
func (r *VenueRepository) GetByID(ctx context.Context, id string) (*venue.Venue, error) {
	var row venueRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+venueColumns+` FROM venues WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, venue.ErrVenueNotFound
		}
		return nil, fmt.Errorf("会場取得に失敗しました: %w", err)
	}
	venues, err := r.withSeats(ctx, []venueRow{row})
	if err != nil {
		return nil, err
	}
	return venues[0], nil
}

// ListByBusinessUser は事業者の会場一覧を取得する
func (r *VenueRepository) ListByBusinessUser(ctx context.Context, businessUserID string, limit, offset int) ([]*venue.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE business_user_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	var rows []venueRow
	if err := r.db.SelectContext(ctx, &rows, query, businessUserID, limit, offset); err != nil {
		return nil, fmt.Errorf("会場一覧取得に失敗しました: %w", err)
	}
	return r.withSeats(ctx, rows)
}

func (r *VenueRepository) withSeats(ctx context.Context, rows []venueRow) ([]*venue.Venue, error) {
	if len(rows) == 0 {
		return []*venue.Venue{}, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var seatRows []venueSeatRow
	query := `SELECT id, venue_id, seat_number, seat_type FROM venue_seats WHERE venue_id = ANY($1) ORDER BY venue_id, position`
	if err := r.db.SelectContext(ctx, &seatRows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	byVenue := make(map[string][]venueSeatRow, len(rows))
	for _, s := range seatRows {
		byVenue[s.VenueID] = append(byVenue[s.VenueID], s)
	}

	venues := make([]*venue.Venue, len(rows))
	for i := range rows {
		v, err := rows[i].toEntity(byVenue[rows[i].ID])
		if err != nil {
			return nil, fmt.Errorf("会場の復元に失敗: %w", err)
		}
		venues[i] = v
	}
	return venues, nil
}

var _ venue.Repository = (*VenueRepository)(nil)
