package handler

import (
	"context"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

// StockGate is the core surface exposed over HTTP and gRPC.
type StockGate interface {
	Purchase(ctx context.Context, productID int64) domain.PurchaseResult
	PurchaseWithReseed(ctx context.Context, productID int64) domain.PurchaseResult
	Resync(ctx context.Context, productID int64) domain.ResyncResult
	GetStock(ctx context.Context, productID int64) (domain.StockStatus, error)
	Ping(ctx context.Context) error
}

func purchaseMessage(outcome domain.Outcome) string {
	switch outcome {
	case domain.OutcomeSuccess:
		return "purchase successful"
	case domain.OutcomeSoldOut:
		return "sold out"
	case domain.OutcomeFailure:
		return "purchase failed, please retry"
	case domain.OutcomeProductNotFound:
		return "product not found"
	default:
		return "system error, please retry"
	}
}

func resyncMessage(outcome domain.Outcome) string {
	switch outcome {
	case domain.OutcomeSuccess:
		return "stock resynced"
	case domain.OutcomeProductNotFound:
		return "product not found"
	default:
		return "resync failed"
	}
}
