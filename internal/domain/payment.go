package domain

import (
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodDebit    PaymentMethod = "DEBIT"
	MethodCredit   PaymentMethod = "CREDIT"
	MethodQR       PaymentMethod = "QR"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodMixed    PaymentMethod = "MIXED"
)

// PaymentEpsilon absorbs rounding on tendered amounts.
var PaymentEpsilon = decimal.RequireFromString("0.01")

// Payment is one of CashPayment, OtherPayment or MixedPayment.
type Payment interface {
	Method() PaymentMethod
	// Validate checks the tendered amounts against the sale total.
	Validate(total decimal.Decimal) error
	// CashLeg is the part of total that lands in the drawer.
	CashLeg(total decimal.Decimal) decimal.Decimal
	// Change is what goes back to the buyer.
	Change(total decimal.Decimal) decimal.Decimal
	Tendered() (cash, other decimal.NullDecimal)
	sealed()
}

type CashPayment struct {
	Cash decimal.Decimal
}

type OtherPayment struct {
	Kind  PaymentMethod
	Other decimal.Decimal
}

type MixedPayment struct {
	Cash  decimal.Decimal
	Other decimal.Decimal
}

// NewPayment checks presence rules for each method; amount checks happen in Validate.
func NewPayment(method PaymentMethod, cash, other *decimal.Decimal) (Payment, error) {
	for _, amt := range []*decimal.Decimal{cash, other} {
		if amt != nil && amt.IsNegative() {
			return nil, ErrInvalidRequest.With("tendered amounts must not be negative")
		}
	}

	switch method {
	case MethodCash:
		if cash == nil {
			return nil, ErrInvalidRequest.With("cashTendered is required for CASH")
		}
		return CashPayment{Cash: *cash}, nil
	case MethodMixed:
		if cash == nil || other == nil {
			return nil, ErrInvalidRequest.With("cashTendered and otherTendered are required for MIXED")
		}
		return MixedPayment{Cash: *cash, Other: *other}, nil
	case MethodDebit, MethodCredit, MethodQR, MethodTransfer:
		if cash != nil {
			return nil, ErrInvalidRequest.With("cashTendered is not accepted for %s", method)
		}
		if other == nil {
			return nil, ErrInvalidRequest.With("otherTendered is required for %s", method)
		}
		return OtherPayment{Kind: method, Other: *other}, nil
	default:
		return nil, ErrInvalidRequest.With("unknown payment method %q", method)
	}
}

func covers(amount, total decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(total.Sub(PaymentEpsilon))
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func (CashPayment) Method() PaymentMethod { return MethodCash }

func (p CashPayment) Validate(total decimal.Decimal) error {
	if !covers(p.Cash, total) {
		return ErrPaymentMismatch.With("cash tendered %s is below total %s", p.Cash.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

// CashLeg is what stays in the drawer; a tender accepted within the epsilon keeps only the cash given.
func (p CashPayment) CashLeg(total decimal.Decimal) decimal.Decimal {
	return decimal.Min(p.Cash, total)
}

func (p CashPayment) Change(total decimal.Decimal) decimal.Decimal {
	return nonNegative(p.Cash.Sub(total))
}

func (p CashPayment) Tendered() (decimal.NullDecimal, decimal.NullDecimal) {
	return decimal.NewNullDecimal(p.Cash), decimal.NullDecimal{}
}

func (CashPayment) sealed() {}

func (p OtherPayment) Method() PaymentMethod { return p.Kind }

func (p OtherPayment) Validate(total decimal.Decimal) error {
	if !covers(p.Other, total) {
		return ErrPaymentMismatch.With("%s tendered %s is below total %s", p.Kind, p.Other.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

func (OtherPayment) CashLeg(decimal.Decimal) decimal.Decimal { return decimal.Zero }

func (OtherPayment) Change(decimal.Decimal) decimal.Decimal { return decimal.Zero }

func (p OtherPayment) Tendered() (decimal.NullDecimal, decimal.NullDecimal) {
	return decimal.NullDecimal{}, decimal.NewNullDecimal(p.Other)
}

func (OtherPayment) sealed() {}

func (MixedPayment) Method() PaymentMethod { return MethodMixed }

func (p MixedPayment) Validate(total decimal.Decimal) error {
	if !covers(p.Cash.Add(p.Other), total) {
		return ErrPaymentMismatch.With("cash %s plus other %s is below total %s",
			p.Cash.StringFixed(2), p.Other.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

// CashLeg is the cash kept after change, so it always matches the drawer movement.
func (p MixedPayment) CashLeg(total decimal.Decimal) decimal.Decimal {
	return p.Cash.Sub(p.Change(total))
}

// Change is returned from the drawer and never exceeds the cash tendered;
// an overpayment on the other leg is not refunded in cash.
func (p MixedPayment) Change(total decimal.Decimal) decimal.Decimal {
	return decimal.Min(p.Cash, nonNegative(p.Cash.Add(p.Other).Sub(total)))
}

func (p MixedPayment) Tendered() (decimal.NullDecimal, decimal.NullDecimal) {
	return decimal.NewNullDecimal(p.Cash), decimal.NewNullDecimal(p.Other)
}

func (MixedPayment) sealed() {}
