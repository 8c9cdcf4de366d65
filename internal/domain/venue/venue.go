package venue

import (
	"fmt"
	"sort"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/audit"
)

// Seat は会場の座席を表す（作成後は不変）
type Seat struct {
	ID         string
	SeatNumber string
	SeatType   SeatType
}

// Venue は会場集約を表す
type Venue struct {
	ID               string
	BusinessUserID   string
	Name             string
	Type             Type
	RunningStartedAt TimeOfDay
	RunningEndedAt   TimeOfDay
	Audit            audit.Info

	seats      []Seat
	typeBySeat map[string]SeatType
}

// CreateParams は新規会場作成の入力
type CreateParams struct {
	ID               string
	BusinessUserID   string
	Name             string
	Type             Type
	RunningStartedAt TimeOfDay
	RunningEndedAt   TimeOfDay
	Seats            []Seat
}

// Create は検証付きで新しい会場を作成する
// 検証に失敗した場合は会場を返さない
func Create(p CreateParams) (*Venue, error) {
	if !p.RunningStartedAt.Before(p.RunningEndedAt) {
		return nil, fmt.Errorf("%w: %s - %s", ErrInvalidTimeRange, p.RunningStartedAt, p.RunningEndedAt)
	}
	if err := checkSeats(p.Seats); err != nil {
		return nil, err
	}
	return newVenue(p.ID, p.BusinessUserID, p.Name, p.Type, p.RunningStartedAt, p.RunningEndedAt, p.Seats, audit.Info{}), nil
}

// ReconstructParams は永続化済み会場の復元入力
type ReconstructParams struct {
	ID               string
	BusinessUserID   string
	Name             string
	Type             Type
	RunningStartedAt TimeOfDay
	RunningEndedAt   TimeOfDay
	Seats            []Seat
	Audit            audit.Info
}

// Reconstruct は永続化済みの状態から会場を復元する（検証なし）
func Reconstruct(p ReconstructParams) *Venue {
	return newVenue(p.ID, p.BusinessUserID, p.Name, p.Type, p.RunningStartedAt, p.RunningEndedAt, p.Seats, p.Audit)
}

func newVenue(id, businessUserID, name string, t Type, start, end TimeOfDay, seats []Seat, a audit.Info) *Venue {
	copied := make([]Seat, len(seats))
	copy(copied, seats)

	index := make(map[string]SeatType, len(copied))
	for _, s := range copied {
		// 同一IDが重複した場合は先勝ち
		if _, ok := index[s.ID]; !ok {
			index[s.ID] = s.SeatType
		}
	}
	return &Venue{
		ID:               id,
		BusinessUserID:   businessUserID,
		Name:             name,
		Type:             t,
		RunningStartedAt: start,
		RunningEndedAt:   end,
		Audit:            a,
		seats:            copied,
		typeBySeat:       index,
	}
}

// SeatTypeOf は座席IDから座席種別を引く
// 存在しない座席IDの場合は false を返す
func (v *Venue) SeatTypeOf(seatID string) (SeatType, bool) {
	t, ok := v.typeBySeat[seatID]
	return t, ok
}

// Capacity は座席数を返す
func (v *Venue) Capacity() int {
	return len(v.seats)
}

// Seats は座席一覧のコピーを返す
func (v *Venue) Seats() []Seat {
	out := make([]Seat, len(v.seats))
	copy(out, v.seats)
	return out
}

// SeatTypeBySeatID は座席ID→座席種別のマップを返す
func (v *Venue) SeatTypeBySeatID() map[string]SeatType {
	out := make(map[string]SeatType, len(v.typeBySeat))
	for id, t := range v.typeBySeat {
		out[id] = t
	}
	return out
}

// SeatTypesInUse は会場内で使われている座席種別を返す
func (v *Venue) SeatTypesInUse() []SeatType {
	seen := make(map[SeatType]struct{})
	for _, s := range v.seats {
		seen[s.SeatType] = struct{}{}
	}
	out := make([]SeatType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func checkSeats(seats []Seat) error {
	bySeatNumber := make(map[string][]Seat, len(seats))
	for _, s := range seats {
		if s.ID == "" || s.SeatNumber == "" {
			return ErrInvalidSeat
		}
		if !s.SeatType.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidSeatType, s.SeatType)
		}
		bySeatNumber[s.SeatNumber] = append(bySeatNumber[s.SeatNumber], s)
	}

	var duplicated []string
	for number, group := range bySeatNumber {
		if len(group) >= 2 {
			duplicated = append(duplicated, number)
		}
	}
	if len(duplicated) > 0 {
		sort.Strings(duplicated)
		return fmt.Errorf("%w: %v", ErrDuplicateVenueSeat, duplicated)
	}
	return nil
}
