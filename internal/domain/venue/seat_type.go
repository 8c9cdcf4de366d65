package venue

import "strings"

// SeatType は座席の価格帯（ティア）を表す
type SeatType string

const (
	SeatTypeNormal     SeatType = "NORMAL"
	SeatTypeVIP        SeatType = "VIP"
	SeatTypePremium    SeatType = "PREMIUM"
	SeatTypeAccessible SeatType = "ACCESSIBLE"
)

// SeatTypes は定義済みの座席種別を表示順で返す
func SeatTypes() []SeatType {
	return []SeatType{SeatTypeNormal, SeatTypeVIP, SeatTypePremium, SeatTypeAccessible}
}

// ParseSeatType は文字列を座席種別に変換する（大文字小文字は区別しない）
func ParseSeatType(s string) (SeatType, error) {
	st := SeatType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidSeatType
	}
	return st, nil
}

// IsValid は定義済みの座席種別かを返す
func (t SeatType) IsValid() bool {
	switch t {
	case SeatTypeNormal, SeatTypeVIP, SeatTypePremium, SeatTypeAccessible:
		return true
	}
	return false
}

func (t SeatType) String() string {
	return string(t)
}

// Type は会場の種別を表す
type Type string

const (
	TypeConcertHall Type = "CONCERT_HALL"
	TypeTheater     Type = "THEATER"
	TypeStadium     Type = "STADIUM"
	TypeCinema      Type = "CINEMA"
	TypeEtc         Type = "ETC"
)

// ParseType は文字列を会場種別に変換する
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeConcertHall, TypeTheater, TypeStadium, TypeCinema, TypeEtc:
		return t, nil
	}
	return "", ErrInvalidVenueType
}
