package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
	"github.com/rl1809/flash-sale-gate/internal/metrics"
	"github.com/rl1809/flash-sale-gate/internal/port"
)

const (
	tracerName = "github.com/rl1809/flash-sale-gate/internal/core/service"

	// maxReseeds caps how many times the reseed path reloads the gate from
	// the database within one attempt.
	maxReseeds = 1

	defaultCompensationTimeout = 2 * time.Second
	defaultLoadTimeout         = 5 * time.Second
)

// Compensation reasons, used as metric labels.
const (
	reasonSoldOut         = "sold_out"
	reasonOutOfStock      = "out_of_stock"
	reasonProductNotFound = "product_not_found"
	reasonLockConflict    = "lock_conflict"
	reasonTimeout         = "timeout"
	reasonPanic           = "panic"
	reasonDurableError    = "durable_error"
)

// PurchaseService admits purchases through the cache counter and commits
// them to the database, restoring the counter whenever an admitted attempt
// does not commit.
type PurchaseService struct {
	cache   port.CacheRepository
	db      port.DatabaseRepository
	metrics *metrics.Metrics
	logger  zerolog.Logger
	tracer  trace.Tracer
	loads   singleflight.Group

	purchaseTimeout     time.Duration
	compensationTimeout time.Duration
	now                 func() time.Time
}

type Option func(*PurchaseService)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *PurchaseService) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PurchaseService) { s.metrics = m }
}

// WithPurchaseTimeout bounds each attempt. A timeout during the durable
// commit is handled like any other durable failure.
func WithPurchaseTimeout(d time.Duration) Option {
	return func(s *PurchaseService) { s.purchaseTimeout = d }
}

func WithCompensationTimeout(d time.Duration) Option {
	return func(s *PurchaseService) {
		if d > 0 {
			s.compensationTimeout = d
		}
	}
}

func NewPurchaseService(cache port.CacheRepository, db port.DatabaseRepository, opts ...Option) *PurchaseService {
	s := &PurchaseService{
		cache:               cache,
		db:                  db,
		logger:              zerolog.Nop(),
		tracer:              otel.Tracer(tracerName),
		compensationTimeout: defaultCompensationTimeout,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	return s
}

// Purchase runs one attempt: admission through the gate counter, then the
// durable decrement. It never returns raw infrastructure errors; they are
// folded into the result's outcome and detail.
func (s *PurchaseService) Purchase(ctx context.Context, productID int64) domain.PurchaseResult {
	return s.purchase(ctx, productID, 0)
}

// PurchaseWithReseed behaves like Purchase, but when the gate reports sold
// out it reloads the durable stock once and, if any is left, reseeds the
// counter and tries one more decrement. It recovers from an evicted or stale
// low counter.
func (s *PurchaseService) PurchaseWithReseed(ctx context.Context, productID int64) domain.PurchaseResult {
	return s.purchase(ctx, productID, maxReseeds)
}

func (s *PurchaseService) purchase(ctx context.Context, productID int64, reseeds int) (res domain.PurchaseResult) {
	start := time.Now()
	attemptID := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, "PurchaseService.Purchase", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.String("purchase.attempt_id", attemptID),
		attribute.Bool("purchase.reseed", reseeds > 0),
	))
	logger := s.logger.With().Int64("product_id", productID).Str("attempt_id", attemptID).Logger()

	if s.purchaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.purchaseTimeout)
		defer cancel()
	}

	defer func() {
		res.ProductID = productID
		res.AttemptID = attemptID
		res.CompletedAt = s.now()

		s.metrics.PurchaseOutcomes.WithLabelValues(string(res.Outcome)).Inc()
		s.metrics.PurchaseDuration.Observe(time.Since(start).Seconds())

		span.SetAttributes(attribute.String("purchase.outcome", string(res.Outcome)))
		s.logOutcome(logger, res)
		span.End()
	}()

	gate, outcome, err := s.admit(ctx, logger, productID, reseeds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission failed")
		return domain.PurchaseResult{Outcome: domain.OutcomeSystemError, ErrorDetail: err.Error()}
	}
	if outcome != domain.OutcomeSuccess {
		return domain.PurchaseResult{Outcome: outcome}
	}

	return s.commit(ctx, logger, productID, gate)
}

// admit seeds the counter on a miss and takes one unit from it. It returns
// OutcomeSuccess with the remaining gate value when the attempt may proceed
// to the database.
func (s *PurchaseService) admit(ctx context.Context, logger zerolog.Logger, productID int64, reseeds int) (int64, domain.Outcome, error) {
	_, found, err := s.cache.GetStock(ctx, productID)
	if err != nil {
		return 0, domain.OutcomeSystemError, err
	}

	if !found {
		inStock, err := s.seed(ctx, logger, productID)
		if err != nil {
			return 0, domain.OutcomeSystemError, err
		}
		if !inStock {
			return 0, domain.OutcomeSoldOut, nil
		}
	}

	for attempt := 0; ; attempt++ {
		remaining, err := s.cache.DecrementStock(ctx, productID)
		if err != nil {
			return 0, domain.OutcomeSystemError, err
		}
		if remaining >= 0 {
			return remaining, domain.OutcomeSuccess, nil
		}

		// Went below zero: give the unit back before deciding anything else.
		if _, err := s.compensate(ctx, productID, reasonSoldOut); err != nil {
			return 0, domain.OutcomeSystemError, err
		}

		if attempt >= reseeds {
			return 0, domain.OutcomeSoldOut, nil
		}

		reseeded, err := s.reseed(ctx, logger, productID)
		if err != nil {
			return 0, domain.OutcomeSystemError, err
		}
		if !reseeded {
			return 0, domain.OutcomeSoldOut, nil
		}
	}
}

// seed initializes a missing counter from the database with SETNX, so a
// concurrent initializer that already seeded (and whose callers may already
// have decremented) is never overwritten. It reports whether the product has
// stock.
func (s *PurchaseService) seed(ctx context.Context, logger zerolog.Logger, productID int64) (bool, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return false, err
	}

	stock := int64(0)
	if product.InStock() {
		stock = product.StockCount
	}

	seeded, err := s.cache.SetStockIfAbsent(ctx, productID, stock)
	if err != nil {
		return false, err
	}
	if seeded {
		logger.Debug().Int64("stock", stock).Msg("gate seeded from database")
	}

	return stock > 0, nil
}

func (s *PurchaseService) reseed(ctx context.Context, logger zerolog.Logger, productID int64) (bool, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	if !product.InStock() {
		return false, nil
	}

	if err := s.cache.SetStock(ctx, productID, product.StockCount); err != nil {
		return false, err
	}

	s.metrics.Reseeds.Inc()
	logger.Info().Int64("stock", product.StockCount).Msg("gate reseeded from database")

	return true, nil
}

// loadProduct collapses concurrent cold loads of the same product into one
// database read. The shared read is detached from the leading caller's
// cancellation and bounded by its own timeout, so joined callers never inherit
// another request's cancellation.
func (s *PurchaseService) loadProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	v, err, _ := s.loads.Do(strconv.FormatInt(productID, 10), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout())
		defer cancel()
		return s.db.LoadProduct(ctx, productID)
	})
	if err != nil {
		return nil, err
	}

	product, _ := v.(*domain.Product)
	return product, nil
}

func (s *PurchaseService) loadTimeout() time.Duration {
	if s.purchaseTimeout > 0 {
		return s.purchaseTimeout
	}
	return defaultLoadTimeout
}

// commit runs the durable decrement for an admitted attempt. Unless the
// transaction commits, the deferred block gives the gate unit back, including
// when the transaction body panics or the context expires.
func (s *PurchaseService) commit(ctx context.Context, logger zerolog.Logger, productID int64, gate int64) (res domain.PurchaseResult) {
	ctx, span := s.tracer.Start(ctx, "PurchaseService.commit")
	defer span.End()

	committed := false
	reason := reasonDurableError

	defer func() {
		if r := recover(); r != nil {
			reason = reasonPanic
			res = domain.PurchaseResult{
				Outcome:     domain.OutcomeFailure,
				ErrorDetail: fmt.Sprintf("durable commit panicked: %v", r),
			}
			span.SetStatus(codes.Error, "durable commit panicked")
		}
		if committed {
			return
		}

		if _, err := s.compensate(ctx, productID, reason); err != nil {
			res.ErrorDetail = fmt.Sprintf("%s; gate compensation failed: %v", res.ErrorDetail, err)
		}
	}()

	var durable int64
	err := s.db.RunTransaction(ctx, productID, func(ctx context.Context, tx port.StockTx) error {
		remaining, err := tx.DecrementStock(ctx)
		if err != nil {
			return err
		}
		durable = remaining
		return nil
	})
	if err != nil {
		reason = failureReason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "durable commit failed")
		logger.Warn().Err(err).Str("reason", reason).Msg("durable commit failed, restoring gate")

		return domain.PurchaseResult{Outcome: domain.OutcomeFailure, ErrorDetail: err.Error()}
	}

	committed = true
	s.metrics.SetGateLevel(productID, gate)

	return domain.PurchaseResult{
		Outcome:          domain.OutcomeSuccess,
		GateRemaining:    gate,
		DurableRemaining: durable,
	}
}

// compensate returns one unit to the gate. It runs detached from the caller's
// cancellation so an expired request still restores the counter.
func (s *PurchaseService) compensate(ctx context.Context, productID int64, reason string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "PurchaseService.compensate", trace.WithAttributes(
		attribute.String("compensation.reason", reason),
	))
	defer span.End()

	restored, err := s.cache.IncrementStock(ctx, productID)
	if err != nil {
		s.metrics.CompensationFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "compensation failed")
		s.logger.Error().Err(err).
			Int64("product_id", productID).
			Str("reason", reason).
			Msg("CRITICAL gate compensation failed")
		return 0, err
	}

	s.metrics.Compensations.WithLabelValues(reason).Inc()
	return restored, nil
}

func (s *PurchaseService) logOutcome(logger zerolog.Logger, res domain.PurchaseResult) {
	switch res.Outcome {
	case domain.OutcomeSuccess:
		logger.Debug().
			Int64("gate_remaining", res.GateRemaining).
			Int64("durable_remaining", res.DurableRemaining).
			Msg("purchase committed")
	case domain.OutcomeSoldOut:
		logger.Debug().Msg("sold out")
	case domain.OutcomeFailure:
		logger.Warn().Str("detail", res.ErrorDetail).Msg("purchase failed")
	default:
		logger.Error().Str("detail", res.ErrorDetail).Msg("purchase aborted")
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return reasonOutOfStock
	case errors.Is(err, domain.ErrProductNotFound):
		return reasonProductNotFound
	case errors.Is(err, domain.ErrLockConflict):
		return reasonLockConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return reasonTimeout
	default:
		return reasonDurableError
	}
}
