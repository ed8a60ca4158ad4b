package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

// Resync drops the gate counter and rebuilds it from the durable stock.
// Purchases admitted while it runs may leave the two tiers briefly apart.
func (s *PurchaseService) Resync(ctx context.Context, productID int64) (res domain.ResyncResult) {
	ctx, span := s.tracer.Start(ctx, "PurchaseService.Resync", trace.WithAttributes(
		attribute.Int64("product.id", productID),
	))
	logger := s.logger.With().Int64("product_id", productID).Logger()

	defer func() {
		res.ProductID = productID
		s.metrics.ResyncOutcomes.WithLabelValues(string(res.Outcome)).Inc()
		span.SetAttributes(attribute.String("resync.outcome", string(res.Outcome)))
		span.End()
	}()

	fail := func(err error) domain.ResyncResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resync failed")
		logger.Error().Err(err).Msg("resync failed")
		return domain.ResyncResult{Outcome: domain.OutcomeSystemError, ErrorDetail: err.Error()}
	}

	if err := s.cache.DeleteStock(ctx, productID); err != nil {
		return fail(err)
	}

	product, err := s.db.LoadProduct(ctx, productID)
	if err != nil {
		return fail(err)
	}
	if product == nil {
		logger.Warn().Msg("resync of unknown product")
		return domain.ResyncResult{Outcome: domain.OutcomeProductNotFound, ErrorDetail: domain.ErrProductNotFound.Error()}
	}

	if err := s.cache.SetStock(ctx, productID, product.StockCount); err != nil {
		return fail(err)
	}

	logger.Info().Int64("stock", product.StockCount).Msg("gate resynced from database")

	return domain.ResyncResult{Outcome: domain.OutcomeSuccess, Stock: product.StockCount}
}

// GetStock reports the gate counter and the durable stock side by side.
func (s *PurchaseService) GetStock(ctx context.Context, productID int64) (domain.StockStatus, error) {
	gate, found, err := s.cache.GetStock(ctx, productID)
	if err != nil {
		return domain.StockStatus{}, err
	}

	product, err := s.db.LoadProduct(ctx, productID)
	if err != nil {
		return domain.StockStatus{}, err
	}
	if product == nil {
		return domain.StockStatus{}, domain.ErrProductNotFound
	}

	return domain.StockStatus{
		ProductID:   productID,
		Gate:        gate,
		GatePresent: found,
		Durable:     product.StockCount,
	}, nil
}

// Ping checks both tiers.
func (s *PurchaseService) Ping(ctx context.Context) error {
	return errors.Join(s.cache.Ping(ctx), s.db.Ping(ctx))
}
