package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money amounts leave the service as fixed two-place strings ("0.00", "115.73").
// decimal.Decimal alone trims trailing zeros.

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

func (s CashSession) MarshalJSON() ([]byte, error) {
	type plain CashSession
	return json.Marshal(struct {
		plain
		OpeningFloat   string  `json:"openingFloat"`
		ClosingAmount  *string `json:"closingAmount"`
		ExpectedAmount *string `json:"expectedAmount"`
		Variance       *string `json:"variance"`
	}{
		plain:          plain(s),
		OpeningFloat:   money(s.OpeningFloat),
		ClosingAmount:  nullMoney(s.ClosingAmount),
		ExpectedAmount: nullMoney(s.ExpectedAmount),
		Variance:       nullMoney(s.Variance),
	})
}

func (t PaymentTotal) MarshalJSON() ([]byte, error) {
	type plain PaymentTotal
	return json.Marshal(struct {
		plain
		Total   string `json:"total"`
		CashLeg string `json:"cashLeg"`
	}{
		plain:   plain(t),
		Total:   money(t.Total),
		CashLeg: money(t.CashLeg),
	})
}

func (t SessionTotals) MarshalJSON() ([]byte, error) {
	type plain SessionTotals
	byMethod := make(map[PaymentMethod]string, len(t.ByMethod))
	for method, amount := range t.ByMethod {
		byMethod[method] = money(amount)
	}
	return json.Marshal(struct {
		plain
		Total        string                   `json:"total"`
		Cash         string                   `json:"cash"`
		ByMethod     map[PaymentMethod]string `json:"byMethod"`
		ExpectedCash string                   `json:"expectedCash"`
	}{
		plain:        plain(t),
		Total:        money(t.Total),
		Cash:         money(t.Cash),
		ByMethod:     byMethod,
		ExpectedCash: money(t.ExpectedCash),
	})
}

func (s Sale) MarshalJSON() ([]byte, error) {
	type plain Sale
	return json.Marshal(struct {
		plain
		CashTendered  *string `json:"cashTendered"`
		OtherTendered *string `json:"otherTendered"`
		CashLeg       string  `json:"cashLeg"`
		Change        string  `json:"change"`
		Total         string  `json:"total"`
	}{
		plain:         plain(s),
		CashTendered:  nullMoney(s.CashTendered),
		OtherTendered: nullMoney(s.OtherTendered),
		CashLeg:       money(s.CashLeg),
		Change:        money(s.Change),
		Total:         money(s.Total),
	})
}

func (l SaleLine) MarshalJSON() ([]byte, error) {
	type plain SaleLine
	return json.Marshal(struct {
		plain
		UnitPrice string `json:"unitPrice"`
		Subtotal  string `json:"subtotal"`
	}{
		plain:     plain(l),
		UnitPrice: money(l.UnitPrice),
		Subtotal:  money(l.Subtotal),
	})
}
