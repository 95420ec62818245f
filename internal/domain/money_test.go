package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestSessionMoneyIsFixedTwoPlaces(t *testing.T) {
	cs := CashSession{
		ID:             "cs",
		SellerID:       "S",
		LocationID:     "L1",
		State:          SessionClosed,
		OpeningFloat:   decimal.RequireFromString("100"),
		ClosingAmount:  decimal.NewNullDecimal(decimal.RequireFromString("115.73")),
		ExpectedAmount: decimal.NewNullDecimal(decimal.RequireFromString("115.73")),
		Variance:       decimal.NewNullDecimal(decimal.Zero),
		OpenedAt:       time.Now().UTC(),
	}
	got := toMap(t, cs)
	assert.Equal(t, "100.00", got["openingFloat"])
	assert.Equal(t, "115.73", got["closingAmount"])
	assert.Equal(t, "0.00", got["variance"])
	assert.Equal(t, "S", got["sellerId"])
	assert.Equal(t, "CLOSED", got["state"])

	open := toMap(t, CashSession{ID: "cs", OpeningFloat: decimal.Zero})
	assert.Equal(t, "0.00", open["openingFloat"])
	assert.Nil(t, open["variance"])
	assert.Contains(t, open, "variance")
}

func TestSaleMoneyIsFixedTwoPlaces(t *testing.T) {
	sale := Sale{
		ID:            "s1",
		PaymentMethod: MethodCash,
		CashTendered:  decimal.NewNullDecimal(decimal.RequireFromString("20")),
		CashLeg:       decimal.RequireFromString("15.73"),
		Change:        decimal.RequireFromString("4.27"),
		Total:         decimal.RequireFromString("15.73"),
		IsRemote:      true,
		State:         SaleCompleted,
		Lines: []SaleLine{{
			SaleID: "s1", ProductID: "X", Quantity: 2,
			UnitPrice: decimal.RequireFromString("5"), Subtotal: decimal.RequireFromString("10"),
		}},
	}
	got := toMap(t, sale)
	assert.Equal(t, "20.00", got["cashTendered"])
	assert.Nil(t, got["otherTendered"])
	assert.Equal(t, "15.73", got["cashLeg"])
	assert.Equal(t, true, got["isRemote"])
	line := got["lines"].([]any)[0].(map[string]any)
	assert.Equal(t, "5.00", line["unitPrice"])
	assert.Equal(t, "10.00", line["subtotal"])
	assert.Equal(t, "X", line["productId"])
}

func TestSessionTotalsMoneyIsFixedTwoPlaces(t *testing.T) {
	totals := SessionTotals{
		SalesCount:   1,
		Total:        decimal.RequireFromString("10"),
		Cash:         decimal.Zero,
		ByMethod:     map[PaymentMethod]decimal.Decimal{MethodQR: decimal.RequireFromString("10")},
		ExpectedCash: decimal.RequireFromString("50"),
	}
	got := toMap(t, CashSessionStatus{Open: true, Totals: &totals})
	body := got["totals"].(map[string]any)
	assert.Equal(t, "10.00", body["total"])
	assert.Equal(t, "0.00", body["cash"])
	assert.Equal(t, "50.00", body["expectedCash"])
	assert.Equal(t, "10.00", body["byMethod"].(map[string]any)["QR"])
	assert.EqualValues(t, 1, body["salesCount"])
}
