package postgres

import (
	"errors"
	"regexp"

	"github.com/lib/pq"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/reservation"
)

// PostgreSQL のエラーコード
const (
	codeUniqueViolation           = "23505"
	codeLockNotAvailable          = "55P03"
	codeInvalidTextRepresentation = "22P02"
	activeSeatConstraint          = "uq_reservation_seats_active"
	venueSeatNumberUnique         = "venue_seats_number_unique"
)

var seatKeyDetail = regexp.MustCompile(`\(performance_id, seat_id\)=\([^,]+, ([^)]+)\)`)

func pqCode(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

func isLockNotAvailable(err error) bool {
	pqErr, ok := pqCode(err)
	return ok && pqErr.Code == codeLockNotAvailable
}

// isInvalidText は UUID 列に UUID でない文字列を渡した場合に true を返す
// そのIDの行は存在し得ないので、呼び出し側で NotFound として扱う
func isInvalidText(err error) bool {
	pqErr, ok := pqCode(err)
	return ok && pqErr.Code == codeInvalidTextRepresentation
}

// seatConflictFrom は確保済み座席の一意制約違反を SeatConflictError に変換する
func seatConflictFrom(err error, requested []string) (error, bool) {
	pqErr, ok := pqCode(err)
	if !ok || pqErr.Code != codeUniqueViolation || pqErr.Constraint != activeSeatConstraint {
		return nil, false
	}
	if m := seatKeyDetail.FindStringSubmatch(pqErr.Detail); m != nil {
		return &reservation.SeatConflictError{SeatIDs: []string{m[1]}}, true
	}
	return &reservation.SeatConflictError{SeatIDs: requested}, true
}
