package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/venue-seat-reservation/internal/domain/venue"
)

var (
	ErrPriceNotDefined = errors.New("座席種別の単価が設定されていません")
	ErrNegativePrice   = errors.New("単価は0以上である必要があります")
)

// Pricing は座席種別ごとの単価表（作成後は読み取り専用）
type Pricing struct {
	unitPrices map[venue.SeatType]decimal.Decimal
}

// New は単価表を作成する
func New(unitPrices map[venue.SeatType]decimal.Decimal) (Pricing, error) {
	copied := make(map[venue.SeatType]decimal.Decimal, len(unitPrices))
	for t, p := range unitPrices {
		if !t.IsValid() {
			return Pricing{}, fmt.Errorf("%w: %q", venue.ErrInvalidSeatType, t)
		}
		if p.IsNegative() {
			return Pricing{}, fmt.Errorf("%w: %s=%s", ErrNegativePrice, t, p)
		}
		copied[t] = p
	}
	return Pricing{unitPrices: copied}, nil
}

// MustNew は New の失敗時に panic する版
func MustNew(unitPrices map[venue.SeatType]decimal.Decimal) Pricing {
	p, err := New(unitPrices)
	if err != nil {
		panic(err)
	}
	return p
}

// UnitPriceFor は座席種別の単価を返す
func (p Pricing) UnitPriceFor(t venue.SeatType) (decimal.Decimal, bool) {
	price, ok := p.unitPrices[t]
	return price, ok
}

// Covers は指定した座席種別すべてに単価があるかを確認する
func (p Pricing) Covers(types []venue.SeatType) error {
	for _, t := range types {
		if _, ok := p.unitPrices[t]; !ok {
			return fmt.Errorf("%w: %s", ErrPriceNotDefined, t)
		}
	}
	return nil
}

// UnitPrices は単価表のコピーを返す
func (p Pricing) UnitPrices() map[venue.SeatType]decimal.Decimal {
	out := make(map[venue.SeatType]decimal.Decimal, len(p.unitPrices))
	for t, price := range p.unitPrices {
		out[t] = price
	}
	return out
}
