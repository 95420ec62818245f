package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) OpenSession(ctx context.Context, req domain.OpenCashSessionRequest) (domain.CashSession, error) {
	actor, err := s.identity(ctx)
	if err != nil {
		return domain.CashSession{}, err
	}
	location, err := s.homeLocation(actor)
	if err != nil {
		return domain.CashSession{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.CashSession{}, err
	}
	if req.OpeningFloat.IsNegative() {
		return domain.CashSession{}, domain.ErrInvalidRequest.With("openingFloat must not be negative")
	}

	session := domain.CashSession{
		ID:           xid.New("cs"),
		SellerID:     actor.UserID,
		LocationID:   location,
		State:        domain.SessionOpen,
		OpeningFloat: req.OpeningFloat.Round(2),
		OpeningNotes: strings.TrimSpace(req.Notes),
		OpenedAt:     s.now(),
	}

	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetOpenSession(ctx, actor.UserID, location); err == nil {
			return domain.ErrSessionAlreadyOpen.With("seller %s already has an open cash session at %s", actor.UserID, location)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.CreateSession(ctx, session)
	})
	if errors.Is(err, store.ErrDuplicate) {
		err = domain.ErrSessionAlreadyOpen.With("seller %s already has an open cash session at %s", actor.UserID, location)
	}
	if err != nil {
		return domain.CashSession{}, asDomain(err)
	}

	if s.metrics != nil {
		s.metrics.SessionTransitions.WithLabelValues("open").Inc()
	}
	s.logAudit(ctx, actor, "cash_session_open", "cash_session", session.ID, nil, session)
	return session, nil
}

// CurrentSession reports the caller's open session with totals computed from its completed sales.
func (s *Service) CurrentSession(ctx context.Context) (domain.CashSessionStatus, error) {
	actor, err := s.identity(ctx)
	if err != nil {
		return domain.CashSessionStatus{}, err
	}
	location, err := s.homeLocation(actor)
	if err != nil {
		return domain.CashSessionStatus{}, err
	}

	var status domain.CashSessionStatus
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		session, err := tx.GetOpenSession(ctx, actor.UserID, location)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		totals, err := sessionTotals(ctx, tx, *session)
		if err != nil {
			return err
		}
		status = domain.CashSessionStatus{Open: true, Session: session, Totals: &totals}
		return nil
	})
	if err != nil {
		return domain.CashSessionStatus{}, asDomain(err)
	}
	return status, nil
}

func (s *Service) CloseSession(ctx context.Context, sessionID string, req domain.CloseCashSessionRequest) (domain.CashSession, error) {
	actor, err := s.identity(ctx)
	if err != nil {
		return domain.CashSession{}, err
	}
	if err := s.validateRequest(req); err != nil {
		return domain.CashSession{}, err
	}
	if req.ClosingAmount.IsNegative() {
		return domain.CashSession{}, domain.ErrInvalidRequest.With("closingAmount must not be negative")
	}
	sessionID = strings.TrimSpace(sessionID)

	var before, closed domain.CashSession
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		session, err := tx.LockSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrSessionNotFound.With("cash session %s not found", sessionID)
		}
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && session.SellerID != actor.UserID {
			return domain.ErrForbidden.With("only the owning seller or an admin may close cash session %s", sessionID)
		}
		if session.State != domain.SessionOpen {
			return domain.ErrSessionClosed.With("cash session %s is already closed", sessionID)
		}
		before = *session

		totals, err := sessionTotals(ctx, tx, *session)
		if err != nil {
			return err
		}

		closing := req.ClosingAmount.Round(2)
		at := s.now()
		closed = *session
		closed.State = domain.SessionClosed
		closed.ClosingAmount = decimal.NewNullDecimal(closing)
		closed.ExpectedAmount = decimal.NewNullDecimal(totals.ExpectedCash)
		closed.Variance = decimal.NewNullDecimal(closing.Sub(totals.ExpectedCash))
		closed.ClosingNotes = strings.TrimSpace(req.Notes)
		closed.ClosedAt = &at

		if err := tx.CloseSession(ctx, closed); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.ErrSessionClosed.With("cash session %s is already closed", sessionID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.CashSession{}, asDomain(err)
	}

	if s.metrics != nil {
		s.metrics.SessionTransitions.WithLabelValues("close").Inc()
	}
	s.logAudit(ctx, actor, "cash_session_close", "cash_session", closed.ID, before, closed)
	return closed, nil
}

// sessionTotals aggregates completed sales; expected cash is the float plus every cash leg.
func sessionTotals(ctx context.Context, tx store.Tx, session domain.CashSession) (domain.SessionTotals, error) {
	rows, err := tx.SessionPaymentTotals(ctx, session.ID)
	if err != nil {
		return domain.SessionTotals{}, err
	}

	totals := domain.SessionTotals{
		Total:    decimal.Zero,
		Cash:     decimal.Zero,
		ByMethod: make(map[domain.PaymentMethod]decimal.Decimal, len(rows)),
	}
	for _, row := range rows {
		totals.SalesCount += row.Count
		totals.Total = totals.Total.Add(row.Total)
		totals.Cash = totals.Cash.Add(row.CashLeg)
		totals.ByMethod[row.Method] = row.Total.Round(2)
	}
	totals.Total = totals.Total.Round(2)
	totals.Cash = totals.Cash.Round(2)
	totals.ExpectedCash = session.OpeningFloat.Add(totals.Cash).Round(2)
	return totals, nil
}
