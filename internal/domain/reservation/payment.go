package reservation

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentInfo は外部決済レコードへの参照（値オブジェクト）
type PaymentInfo struct {
	PaymentKey string
	Method     string
	Amount     decimal.Decimal
	PaidAt     time.Time
}

// Validate は支払い情報の検証を行う
func (p PaymentInfo) Validate() error {
	if p.PaymentKey == "" {
		return ErrInvalidPaymentInfo
	}
	if p.Amount.IsNegative() {
		return ErrInvalidPaymentInfo
	}
	return nil
}
