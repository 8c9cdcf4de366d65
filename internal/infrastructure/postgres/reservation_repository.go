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
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/performance"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/transaction"
	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

const reservationColumns = `id, user_id, performance_id, status, total_price,
	payment_key, payment_method, payment_amount, paid_at,
	expires_at, confirmed_at, cancelled_at,
	created_at, created_by, last_modified_at, last_modified_by`

type reservationRow struct {
	ID             string              `db:"id"`
	UserID         string              `db:"user_id"`
	PerformanceID  string              `db:"performance_id"`
	Status         string              `db:"status"`
	TotalPrice     decimal.Decimal     `db:"total_price"`
	PaymentKey     sql.NullString      `db:"payment_key"`
	PaymentMethod  sql.NullString      `db:"payment_method"`
	PaymentAmount  decimal.NullDecimal `db:"payment_amount"`
	PaidAt         sql.NullTime        `db:"paid_at"`
	ExpiresAt      sql.NullTime        `db:"expires_at"`
	ConfirmedAt    *time.Time          `db:"confirmed_at"`
	CancelledAt    *time.Time          `db:"cancelled_at"`
	CreatedAt      time.Time           `db:"created_at"`
	CreatedBy      string              `db:"created_by"`
	LastModifiedAt time.Time           `db:"last_modified_at"`
	LastModifiedBy string              `db:"last_modified_by"`
}

type reservationSeatRow struct {
	ReservationID string          `db:"reservation_id"`
	SeatID        string          `db:"seat_id"`
	SeatType      string          `db:"seat_type"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
}

func (r *reservationRow) toEntity(seats []reservationSeatRow) *reservation.Reservation {
	domainSeats := make([]reservation.Seat, len(seats))
	for i, s := range seats {
		domainSeats[i] = reservation.Seat{
			SeatID:    s.SeatID,
			SeatType:  venue.SeatType(s.SeatType),
			UnitPrice: s.UnitPrice,
		}
	}

	var payment *reservation.PaymentInfo
	if r.PaymentKey.Valid {
		payment = &reservation.PaymentInfo{
			PaymentKey: r.PaymentKey.String,
			Method:     r.PaymentMethod.String,
			Amount:     r.PaymentAmount.Decimal,
			PaidAt:     r.PaidAt.Time,
		}
	}

	return reservation.Reconstruct(reservation.ReconstructParams{
		ID:            r.ID,
		UserID:        r.UserID,
		PerformanceID: r.PerformanceID,
		Seats:         domainSeats,
		TotalPrice:    r.TotalPrice,
		Status:        reservation.Status(r.Status),
		Payment:       payment,
		ExpiresAt:     r.ExpiresAt.Time,
		ConfirmedAt:   r.ConfirmedAt,
		CancelledAt:   r.CancelledAt,
		Audit: audit.Info{
			CreatedAt:      r.CreatedAt,
			CreatedBy:      r.CreatedBy,
			LastModifiedAt: r.LastModifiedAt,
			LastModifiedBy: r.LastModifiedBy,
		},
	})
}

// ReservationRepository は予約リポジトリのPostgreSQL実装
type ReservationRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewReservationRepository は lockTimeout を公演ロック行の待機上限として使う
func NewReservationRepository(db *sqlx.DB, lockTimeout time.Duration) *ReservationRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &ReservationRepository{db: db, lockTimeout: lockTimeout}
}

// LockPerformance は公演ロック行を FOR UPDATE で取得し、トランザクション終了まで保持する
func (r *ReservationRepository) LockPerformance(ctx context.Context, tx transaction.Tx, performanceID string) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	// SET LOCAL はプレースホルダを受け付けない
	if _, err := sqlxTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("ロック待機時間の設定に失敗: %w", err)
	}

	var id string
	err = sqlxTx.QueryRowxContext(ctx,
		`SELECT performance_id FROM performance_claims WHERE performance_id = $1 FOR UPDATE`,
		performanceID,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows), isInvalidText(err):
		return performance.ErrPerformanceNotFound
	case isLockNotAvailable(err):
		return fmt.Errorf("%w: performance=%s", reservation.ErrLockTimeout, performanceID)
	case err != nil:
		return fmt.Errorf("公演ロックの取得に失敗: %w", err)
	}

	if _, err := sqlxTx.ExecContext(ctx, `UPDATE performance_claims SET updated_at = NOW() WHERE performance_id = $1`, performanceID); err != nil {
		return fmt.Errorf("公演ロック行の更新に失敗: %w", err)
	}
	return nil
}

// ClaimedSeatIDs は解放されていない座席の確保を返す
func (r *ReservationRepository) ClaimedSeatIDs(ctx context.Context, tx transaction.Tx, performanceID string) ([]string, error) {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var ids []string
	query := `SELECT seat_id FROM reservation_seats WHERE performance_id = $1 AND released_at IS NULL`
	if err := sqlxTx.SelectContext(ctx, &ids, query, performanceID); err != nil {
		return nil, fmt.Errorf("確保済み座席の取得に失敗: %w", err)
	}
	return ids, nil
}

// Create は予約と座席の確保を登録する
func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reservations (user_id, performance_id, status, total_price, expires_at, created_by, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $1, $1)
		RETURNING id, created_at, last_modified_at
	`
	var createdAt, modifiedAt time.Time
	err = sqlxTx.QueryRowxContext(ctx, query,
		res.UserID, res.PerformanceID, string(res.Status),
		res.TotalPrice, nullTime(res.ExpiresAt),
	).Scan(&res.ID, &createdAt, &modifiedAt)
	if err != nil {
		return fmt.Errorf("予約作成に失敗: %w", err)
	}

	if err := insertReservationSeats(ctx, sqlxTx, res); err != nil {
		return err
	}
	res.Audit = audit.Created(res.UserID, createdAt)
	res.Audit.LastModifiedAt = modifiedAt
	return nil
}

func insertReservationSeats(ctx context.Context, tx *sqlx.Tx, res *reservation.Reservation) error {
	args := make([]interface{}, 0, len(res.Seats)*6)
	placeholders := make([]string, 0, len(res.Seats))
	for i, s := range res.Seats {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, res.ID, res.PerformanceID, s.SeatID, string(s.SeatType), s.UnitPrice, i)
	}

	query := `INSERT INTO reservation_seats (reservation_id, performance_id, seat_id, seat_type, unit_price, position) VALUES ` +
		strings.Join(placeholders, ", ")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if conflict, ok := seatConflictFrom(err, res.SeatIDs()); ok {
			return conflict
		}
		return fmt.Errorf("予約座席の登録に失敗: %w", err)
	}
	return nil
}

// Update は予約の状態と支払い情報を更新する
// キャンセルされた予約の座席は同じトランザクションで解放する
func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}

	var (
		paymentKey, paymentMethod sql.NullString
		paymentAmount             decimal.NullDecimal
		paidAt                    sql.NullTime
	)
	if res.Payment != nil {
		paymentKey = sql.NullString{String: res.Payment.PaymentKey, Valid: true}
		paymentMethod = sql.NullString{String: res.Payment.Method, Valid: res.Payment.Method != ""}
		paymentAmount = decimal.NullDecimal{Decimal: res.Payment.Amount, Valid: true}
		paidAt = nullTime(res.Payment.PaidAt)
	}

	query := `
		UPDATE reservations
		SET status = $1, payment_key = $2, payment_method = $3, payment_amount = $4, paid_at = $5,
		    confirmed_at = $6, cancelled_at = $7, last_modified_at = NOW(), last_modified_by = $8
		WHERE id = $9
		RETURNING last_modified_at
	`
	var modifiedAt time.Time
	err = sqlxTx.QueryRowxContext(ctx, query,
		string(res.Status), paymentKey, paymentMethod, paymentAmount, paidAt,
		res.ConfirmedAt, res.CancelledAt, res.UserID, res.ID,
	).Scan(&modifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reservation.ErrReservationNotFound
		}
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	res.Audit = res.Audit.Touch(res.UserID, modifiedAt)

	if !res.IsActive() {
		releasedAt := modifiedAt
		if res.CancelledAt != nil {
			releasedAt = *res.CancelledAt
		}
		if _, err := sqlxTx.ExecContext(ctx,
			`UPDATE reservation_seats SET released_at = $1 WHERE reservation_id = $2 AND released_at IS NULL`,
			releasedAt, res.ID,
		); err != nil {
			return fmt.Errorf("座席の解放に失敗: %w", err)
		}
	}
	return nil
}

// GetByIDTx はトランザクション内で予約を行ロック付きで取得する
func (r *ReservationRepository) GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var row reservationRow
	if err := sqlxTx.GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	list, err := withReservationSeats(ctx, sqlxTx, []reservationRow{row})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// GetByID はIDから予約を取得する
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	list, err := withReservationSeats(ctx, r.db, []reservationRow{row})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// GetByUserID はユーザーの予約一覧を新しい順に取得する
func (r *ReservationRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	return r.list(ctx, query, userID, limit, offset)
}

// GetByPerformanceID は公演の予約一覧を新しい順に取得する
func (r *ReservationRepository) GetByPerformanceID(ctx context.Context, performanceID string, limit, offset int) ([]*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE performance_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	return r.list(ctx, query, performanceID, limit, offset)
}

// CountClaimedSeats は公演で確保済みの座席数を返す
func (r *ReservationRepository) CountClaimedSeats(ctx context.Context, performanceID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reservation_seats WHERE performance_id = $1 AND released_at IS NULL`
	if err := r.db.GetContext(ctx, &count, query, performanceID); err != nil {
		if isInvalidText(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("確保済み座席数の取得に失敗: %w", err)
	}
	return count, nil
}

// GetExpiredPending は保持期限を過ぎた支払い待ち予約を期限の古い順に取得する
func (r *ReservationRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at, id LIMIT $2`
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}
	return withReservationSeats(ctx, r.db, rows)
}

func (r *ReservationRepository) list(ctx context.Context, query string, key string, limit, offset int) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, key, limit, offset); err != nil {
		if isInvalidText(err) {
			return []*reservation.Reservation{}, nil
		}
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return withReservationSeats(ctx, r.db, rows)
}

// withReservationSeats は予約行に座席明細を付けて復元する（N+1を避けて1クエリで取得）
func withReservationSeats(ctx context.Context, q sqlx.QueryerContext, rows []reservationRow) ([]*reservation.Reservation, error) {
	if len(rows) == 0 {
		return []*reservation.Reservation{}, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var seats []reservationSeatRow
	query := `SELECT reservation_id, seat_id, seat_type, unit_price FROM reservation_seats WHERE reservation_id = ANY($1) ORDER BY reservation_id, position`
	if err := sqlx.SelectContext(ctx, q, &seats, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("予約座席の取得に失敗: %w", err)
	}
	byReservation := make(map[string][]reservationSeatRow, len(rows))
	for _, s := range seats {
		byReservation[s.ReservationID] = append(byReservation[s.ReservationID], s)
	}

	out := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity(byReservation[rows[i].ID])
	}
	return out, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var _ reservation.Repository = (*ReservationRepository)(nil)
