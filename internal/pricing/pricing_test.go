package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func suggestedProduct() domain.Product {
	return domain.Product{
		ID:               "prod_x",
		Cost:             d("10"),
		VATPct:           d("21"),
		DefaultMarginPct: d("30"),
		BasePrice:        d("15.73"),
		Status:           domain.StatusActive,
	}
}

func TestSuggestedPrice(t *testing.T) {
	assert.Equal(t, "15.73", SuggestedPrice(d("10"), d("21"), d("30")).StringFixed(2))
	assert.Equal(t, "0.00", SuggestedPrice(d("0"), d("21"), d("30")).StringFixed(2))
}

func TestResolveWithoutOverrideOrTier(t *testing.T) {
	q, err := Resolve(suggestedProduct(), nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "15.73", q.Subtotal.StringFixed(2))
	assert.Equal(t, "15.73", q.UnitPrice.StringFixed(2))
	assert.Nil(t, q.Tier)

	q, err = Resolve(suggestedProduct(), nil, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "47.19", q.Subtotal.StringFixed(2))
}

func TestApprovedOverrideSupersedesBasePrice(t *testing.T) {
	p := suggestedProduct()
	p.PriceApproved = true
	p.BasePrice = d("18")

	approved := &domain.LocationPriceOverride{Price: decimal.NewNullDecimal(d("12.50")), Approved: true}
	q, err := Resolve(p, approved, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, "25.00", q.Subtotal.StringFixed(2))

	pending := &domain.LocationPriceOverride{Price: decimal.NewNullDecimal(d("12.50")), Approved: false}
	q, err = Resolve(p, pending, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, "36.00", q.Subtotal.StringFixed(2))
}

func TestUnapprovedPriceUsesOverrideMargin(t *testing.T) {
	override := &domain.LocationPriceOverride{MarginPct: decimal.NewNullDecimal(d("50"))}
	price := UnitPrice(suggestedProduct(), override)
	// 10 * 1.21 * 1.5
	assert.Equal(t, "18.15", price.StringFixed(2))
}

func TestTierChargesFixedTotal(t *testing.T) {
	tiers := []domain.QuantityTierPrice{
		{ProductID: "prod_x", MinQty: 3, Price: d("40"), Active: true},
		{ProductID: "prod_x", MinQty: 6, Price: d("70"), Active: true},
		{ProductID: "prod_x", MinQty: 5, Price: d("1"), Active: false},
	}

	q, err := Resolve(suggestedProduct(), nil, tiers, 2)
	require.NoError(t, err)
	assert.Equal(t, "31.46", q.Subtotal.StringFixed(2))

	q, err = Resolve(suggestedProduct(), nil, tiers, 5)
	require.NoError(t, err)
	assert.Equal(t, "40.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "8.00", q.UnitPrice.StringFixed(2))
	require.NotNil(t, q.Tier)
	assert.Equal(t, 3, q.Tier.MinQty)

	q, err = Resolve(suggestedProduct(), nil, tiers, 7)
	require.NoError(t, err)
	assert.Equal(t, "70.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", q.UnitPrice.StringFixed(2))
}

func TestDuplicateTierThresholdRejected(t *testing.T) {
	tiers := []domain.QuantityTierPrice{
		{ProductID: "prod_x", MinQty: 3, Price: d("40"), Active: true},
		{ProductID: "prod_x", MinQty: 3, Price: d("35"), Active: true},
	}
	_, err := Resolve(suggestedProduct(), nil, tiers, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateTierThreshold))
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestResolveRejectsNegative(t *testing.T) {
	p := suggestedProduct()
	p.PriceApproved = true
	p.BasePrice = d("-1")
	_, err := Resolve(p, nil, nil, 1)
	assert.True(t, errors.Is(err, domain.ErrNegativePrice))

	_, err = Resolve(suggestedProduct(), nil, nil, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestResolveRoundsToTwoDecimals(t *testing.T) {
	p := suggestedProduct()
	p.Cost = d("3.333")
	for qty := 1; qty <= 25; qty++ {
		q, err := Resolve(p, nil, nil, qty)
		require.NoError(t, err)
		assert.True(t, q.Subtotal.Equal(q.Subtotal.Round(2)), "qty %d subtotal %s", qty, q.Subtotal)
		assert.False(t, q.Subtotal.IsNegative())
	}
}
