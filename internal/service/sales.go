package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var loyaltyDivisor = decimal.NewFromInt(10)

type saleInput struct {
	actor     domain.Identity
	home      string
	location  string
	remote    bool
	clientID  string
	buyerName string
	payment   domain.Payment
	lines     []domain.SaleLineRequest
}

func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	sale, err := s.createSale(ctx, req)
	s.recordOutcome("create", err)
	return sale, err
}

func (s *Service) createSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	actor, err := s.identity(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	home, err := s.homeLocation(actor)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.Sale{}, err
	}

	payment, err := domain.NewPayment(req.PaymentMethod, req.CashTendered, req.OtherTendered)
	if err != nil {
		return domain.Sale{}, err
	}

	in := saleInput{
		actor:     actor,
		home:      home,
		location:  home,
		clientID:  strings.TrimSpace(req.ClientID),
		buyerName: strings.TrimSpace(req.BuyerName),
		payment:   payment,
		lines:     mergeLines(req.Lines),
	}
	if origin := strings.TrimSpace(req.OriginLocationID); origin != "" && origin != home {
		in.location = origin
		in.remote = true
	}

	var sale domain.Sale
	var low []domain.LocationStock
	for attempt := 0; ; attempt++ {
		sale, low, err = s.commitSale(ctx, in)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrStockConflict) {
			return domain.Sale{}, asDomain(err)
		}
		if s.metrics != nil {
			s.metrics.StockConflicts.Inc()
		}
		if attempt >= s.retry.MaxRetries {
			return domain.Sale{}, domain.ErrInsufficientStock.
				With("stock at %s changed while the sale was committing", in.location).
				Wrap(domain.ErrStockRace)
		}
		s.logger.Info("retrying sale after stock conflict",
			slog.String("seller_id", actor.UserID),
			slog.String("location_id", in.location),
			slog.Int("attempt", attempt+1))
		if err := sleepCtx(ctx, s.retry.Backoff); err != nil {
			return domain.Sale{}, asDomain(err)
		}
	}

	s.afterSale(ctx, actor, sale, low)
	return sale, nil
}

// commitSale validates, prices, persists and reserves stock as one unit.
func (s *Service) commitSale(ctx context.Context, in saleInput) (domain.Sale, []domain.LocationStock, error) {
	var sale domain.Sale
	var low []domain.LocationStock

	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		low = low[:0]

		session, err := tx.GetOpenSession(ctx, in.actor.UserID, in.home)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrNoOpenSession.With("seller %s has no open cash session at %s", in.actor.UserID, in.home)
		}
		if err != nil {
			return err
		}

		if in.remote {
			if _, err := tx.GetActiveLocation(ctx, in.location); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.ErrLocationNotFound.With("origin location %s not found or inactive", in.location)
				}
				return err
			}
		}

		if in.clientID != "" {
			if _, err := tx.GetActiveClient(ctx, in.clientID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.ErrClientNotFound.With("client %s not found or inactive", in.clientID)
				}
				return err
			}
		}

		now := s.now()
		saleID := xid.New("sale")
		lines := make([]domain.SaleLine, 0, len(in.lines))
		total := decimal.Zero
		for _, req := range in.lines {
			line, err := s.priceLine(ctx, tx, in, req)
			if err != nil {
				return err
			}
			line.SaleID = saleID
			lines = append(lines, line)
			total = total.Add(line.Subtotal)
		}
		total = total.Round(2)

		if err := in.payment.Validate(total); err != nil {
			return err
		}

		cash, other := in.payment.Tendered()
		sale = domain.Sale{
			ID:               saleID,
			SellerLocationID: in.home,
			SaleLocationID:   in.location,
			SellerID:         in.actor.UserID,
			ClientID:         in.clientID,
			BuyerName:        in.buyerName,
			CashSessionID:    session.ID,
			PaymentMethod:    in.payment.Method(),
			CashTendered:     cash,
			OtherTendered:    other,
			CashLeg:          in.payment.CashLeg(total).Round(2),
			Change:           in.payment.Change(total).Round(2),
			Total:            total,
			State:            domain.SaleCompleted,
			IsRemote:         in.remote,
			CreatedAt:        now,
			Lines:            lines,
		}
		if in.clientID != "" {
			sale.LoyaltyPoints = loyaltyPoints(total)
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}

		for _, line := range lines {
			row, err := tx.ReserveStock(ctx, line.ProductID, in.location, line.Quantity)
			if err != nil {
				return err
			}
			if row.IsLow() {
				low = append(low, row)
			}
		}

		if sale.LoyaltyPoints > 0 {
			if err := tx.AdjustLoyaltyPoints(ctx, in.clientID, sale.LoyaltyPoints); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Sale{}, nil, err
	}
	return sale, low, nil
}

func (s *Service) priceLine(ctx context.Context, tx store.Tx, in saleInput, req domain.SaleLineRequest) (domain.SaleLine, error) {
	product, err := tx.GetActiveProduct(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SaleLine{}, domain.ErrProductNotFound.With("product %s not found or inactive", req.ProductID)
	}
	if err != nil {
		return domain.SaleLine{}, err
	}

	avail, err := tx.AvailableStock(ctx, req.ProductID, in.location)
	if err != nil {
		return domain.SaleLine{}, err
	}
	if avail < req.Quantity {
		if !in.remote {
			candidates, err := tx.AvailabilityAcrossLocations(ctx, req.ProductID, in.location, req.Quantity)
			if err != nil {
				return domain.SaleLine{}, err
			}
			if len(candidates) > 0 {
				return domain.SaleLine{}, domain.ErrInsufficientStockSuggestRemote.
					With("product %s: requested %d, available %d at %s; retry with originLocationId", req.ProductID, req.Quantity, avail, in.location).
					WithCandidates(candidates)
			}
		}
		return domain.SaleLine{}, domain.ErrInsufficientStock.
			With("product %s: requested %d, available %d at %s", req.ProductID, req.Quantity, avail, in.location)
	}

	override, err := tx.GetPriceOverride(ctx, req.ProductID, in.location)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.SaleLine{}, err
	}
	tiers, err := tx.ListActiveTierPrices(ctx, req.ProductID)
	if err != nil {
		return domain.SaleLine{}, err
	}

	quote, err := pricing.Resolve(*product, override, tiers, req.Quantity)
	if err != nil {
		return domain.SaleLine{}, err
	}
	return domain.SaleLine{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: quote.UnitPrice,
		Subtotal:  quote.Subtotal,
	}, nil
}

func (s *Service) afterSale(ctx context.Context, actor domain.Identity, sale domain.Sale, low []domain.LocationStock) {
	s.publish(ctx, domain.EventSaleCompleted, sale, domain.LocationChannel(sale.SaleLocationID), domain.AdminChannel)

	if s.notifier != nil {
		if sale.IsRemote {
			_ = s.effects.Submit(ctx, "notify", func(taskCtx context.Context) error {
				return s.notifier.RemoteSale(taskCtx, sale)
			})
		}
		for _, row := range low {
			row := row
			_ = s.effects.Submit(ctx, "notify", func(taskCtx context.Context) error {
				return s.notifier.LowStock(taskCtx, row)
			})
		}
	}

	s.logAudit(ctx, actor, "sale_create", "sale", sale.ID, nil, sale)
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.identity(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, domain.ErrSaleNotFound.With("sale %s not found", saleID)
	}
	if err != nil {
		return domain.Sale{}, asDomain(err)
	}
	if !actor.IsAdmin() && sale.SellerID != actor.UserID {
		return domain.Sale{}, domain.ErrForbidden.With("sale %s belongs to another seller", saleID)
	}
	return *sale, nil
}

func (s *Service) CancelSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.cancelSale(ctx, strings.TrimSpace(saleID))
	s.recordOutcome("cancel", err)
	return sale, err
}

func (s *Service) cancelSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, err := s.identity(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	var before, after domain.Sale
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		existing, err := tx.LockSale(ctx, saleID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrSaleNotFound.With("sale %s not found", saleID)
		}
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && existing.SellerID != actor.UserID {
			return domain.ErrForbidden.With("only the seller or an admin may cancel sale %s", saleID)
		}
		if existing.State == domain.SaleCancelled {
			return domain.ErrAlreadyCancelled.With("sale %s is already cancelled", saleID)
		}
		before = *existing

		for _, line := range existing.Lines {
			if err := tx.ReleaseStock(ctx, line.ProductID, existing.SaleLocationID, line.Quantity); err != nil {
				return err
			}
		}
		if existing.ClientID != "" {
			if points := loyaltyPoints(existing.Total); points > 0 {
				if err := tx.AdjustLoyaltyPoints(ctx, existing.ClientID, -points); err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}
		}

		at := s.now()
		if err := tx.MarkSaleCancelled(ctx, saleID, actor.UserID, at); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrAlreadyCancelled.With("sale %s is already cancelled", saleID)
			}
			return err
		}

		after = *existing
		after.State = domain.SaleCancelled
		after.CancelledAt = &at
		after.CancelledBy = actor.UserID
		return nil
	})
	if err != nil {
		return domain.Sale{}, asDomain(err)
	}

	s.publish(ctx, domain.EventSaleCancelled, after, domain.LocationChannel(after.SaleLocationID), domain.AdminChannel)
	s.logAudit(ctx, actor, "sale_cancel", "sale", after.ID, before, after)
	return after, nil
}

// mergeLines folds repeated products into one line and orders lines by product id,
// which keeps row-lock order stable across concurrent multi-line sales.
func mergeLines(lines []domain.SaleLineRequest) []domain.SaleLineRequest {
	byProduct := make(map[string]int, len(lines))
	out := make([]domain.SaleLineRequest, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if idx, ok := byProduct[id]; ok {
			out[idx].Quantity += line.Quantity
			continue
		}
		byProduct[id] = len(out)
		out = append(out, domain.SaleLineRequest{ProductID: id, Quantity: line.Quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func loyaltyPoints(total decimal.Decimal) int {
	return int(total.Div(loyaltyDivisor).Floor().IntPart())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
