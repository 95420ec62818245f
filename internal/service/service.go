package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"retailpos/backend/internal/broadcast"
	"retailpos/backend/internal/dispatch"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/metrics"
	"retailpos/backend/internal/store"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return id, ok
}

// RetryPolicy bounds how often a commit aborted by a concurrent stock update is replayed.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// SideEffects runs work that must never block or fail the caller.
type SideEffects interface {
	Submit(ctx context.Context, kind string, fn dispatch.Task) error
}

// Notifier records and announces stock alerts and remote sales.
type Notifier interface {
	LowStock(ctx context.Context, row domain.LocationStock) error
	RemoteSale(ctx context.Context, sale domain.Sale) error
}

type Options struct {
	Retry       RetryPolicy
	Broadcaster broadcast.Broadcaster
	SideEffects SideEffects
	Notifier    Notifier
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

type Service struct {
	repo        store.Repository
	retry       RetryPolicy
	broadcaster broadcast.Broadcaster
	effects     SideEffects
	notifier    Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	validate    *validator.Validate
	now         func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = broadcast.Noop{}
	}
	if opts.SideEffects == nil {
		opts.SideEffects = inline{logger: opts.Logger}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Retry.MaxRetries < 0 {
		opts.Retry.MaxRetries = 0
	}

	return &Service{
		repo:        repo,
		retry:       opts.Retry,
		broadcaster: opts.Broadcaster,
		effects:     opts.SideEffects,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         opts.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// inline runs side effects on the calling goroutine; used when no dispatcher is wired.
type inline struct {
	logger *slog.Logger
}

func (i inline) Submit(ctx context.Context, kind string, fn dispatch.Task) error {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		i.logger.Warn("side effect failed", slog.String("kind", kind), slog.Any("error", err))
	}
	return nil
}

func (s *Service) identity(ctx context.Context) (domain.Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(id.UserID) == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if id.Role != domain.RoleAdmin && id.Role != domain.RoleSeller {
		return domain.Identity{}, domain.ErrForbidden.With("unknown role %q", id.Role)
	}
	return id, nil
}

func (s *Service) homeLocation(id domain.Identity) (string, error) {
	if strings.TrimSpace(id.LocationID) == "" {
		return "", domain.ErrForbidden.With("identity %s has no assigned location", id.UserID)
	}
	return id.LocationID, nil
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return domain.ErrInvalidRequest.With("%s", strings.Join(fields, "; "))
	}
	return domain.ErrInvalidRequest.Wrap(err)
}

// asDomain passes rule violations through and hides everything else behind ErrInternal.
func asDomain(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrInternal.Wrap(err)
}

func (s *Service) recordOutcome(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			result = de.Code
		} else {
			result = "Internal"
		}
	}
	s.metrics.SaleOutcomes.WithLabelValues(operation, result).Inc()
}

func (s *Service) publish(ctx context.Context, event string, payload any, channels ...string) {
	for _, channel := range channels {
		channel := channel
		_ = s.effects.Submit(ctx, "broadcast", func(taskCtx context.Context) error {
			return s.broadcaster.Publish(taskCtx, channel, event, payload)
		})
	}
}

func (s *Service) logAudit(ctx context.Context, actor domain.Identity, action, entity, entityID string, before, after any) {
	entry := domain.AuditEntry{
		UserID:    actor.UserID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Before:    snapshot(before),
		After:     snapshot(after),
		CreatedAt: s.now(),
	}
	_ = s.effects.Submit(ctx, "audit", func(taskCtx context.Context) error {
		return s.repo.CreateAuditLog(taskCtx, entry)
	})
}

func snapshot(v any) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
