// Package pricing resolves the charged amount for a product line.
//
// The candidate unit price comes from an approved location override, then the
// product base price. When the base price was never approved it is recomputed
// from cost, VAT and margin. A matching quantity tier replaces the whole line
// subtotal, it is not multiplied by the quantity.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type Quote struct {
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Tier      *domain.QuantityTierPrice
}

// SuggestedPrice is round(cost*(1+vat/100)*(1+margin/100), 2).
func SuggestedPrice(cost, vatPct, marginPct decimal.Decimal) decimal.Decimal {
	withVAT := cost.Mul(decimal.NewFromInt(1).Add(vatPct.Div(hundred)))
	return withVAT.Mul(decimal.NewFromInt(1).Add(marginPct.Div(hundred))).Round(2)
}

// UnitPrice picks the candidate unit price before tiers are considered.
func UnitPrice(product domain.Product, override *domain.LocationPriceOverride) decimal.Decimal {
	if override != nil && override.Approved && override.Price.Valid {
		return override.Price.Decimal.Round(2)
	}
	if product.PriceApproved {
		return product.BasePrice.Round(2)
	}
	margin := product.DefaultMarginPct
	if override != nil && override.MarginPct.Valid {
		margin = override.MarginPct.Decimal
	}
	return SuggestedPrice(product.Cost, product.VATPct, margin)
}

// CheckTiers rejects two active tiers with the same threshold.
func CheckTiers(tiers []domain.QuantityTierPrice) error {
	seen := make(map[int]struct{}, len(tiers))
	for _, tier := range tiers {
		if !tier.Active {
			continue
		}
		if _, dup := seen[tier.MinQty]; dup {
			return domain.ErrDuplicateTierThreshold.With("product %s has two active tiers at min_qty %d", tier.ProductID, tier.MinQty)
		}
		seen[tier.MinQty] = struct{}{}
	}
	return nil
}

// MatchTier returns the active tier with the largest MinQty not above qty.
func MatchTier(tiers []domain.QuantityTierPrice, qty int) *domain.QuantityTierPrice {
	active := make([]domain.QuantityTierPrice, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Active && tier.MinQty <= qty {
			active = append(active, tier)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].MinQty > active[j].MinQty })
	return &active[0]
}

func Resolve(product domain.Product, override *domain.LocationPriceOverride, tiers []domain.QuantityTierPrice, qty int) (Quote, error) {
	if qty <= 0 {
		return Quote{}, domain.ErrInvalidRequest.With("quantity must be positive")
	}
	if err := CheckTiers(tiers); err != nil {
		return Quote{}, err
	}

	quote := Quote{}
	if tier := MatchTier(tiers, qty); tier != nil {
		quote.Tier = tier
		quote.Subtotal = tier.Price.Round(2)
	} else {
		quote.Subtotal = UnitPrice(product, override).Mul(decimal.NewFromInt(int64(qty))).Round(2)
	}

	if quote.Subtotal.IsNegative() {
		return Quote{}, domain.ErrNegativePrice.With("product %s resolved to %s", product.ID, quote.Subtotal.StringFixed(2))
	}
	quote.UnitPrice = quote.Subtotal.Div(decimal.NewFromInt(int64(qty))).Round(2)
	return quote, nil
}
