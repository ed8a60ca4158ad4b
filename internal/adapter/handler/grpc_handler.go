package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

type GRPCHandler struct {
	gate StockGate
}

var _ StockGateServer = (*GRPCHandler)(nil)

func NewGRPCHandler(gate StockGate) *GRPCHandler {
	return &GRPCHandler{gate: gate}
}

// Purchase maps business outcomes onto the response body. Only invalid input
// and unknown products produce a gRPC error.
func (h *GRPCHandler) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "invalid product id")
	}

	var res domain.PurchaseResult
	if req.AllowReseed {
		res = h.gate.PurchaseWithReseed(ctx, req.ProductID)
	} else {
		res = h.gate.Purchase(ctx, req.ProductID)
	}
	if res.Outcome == domain.OutcomeProductNotFound {
		return nil, status.Error(codes.NotFound, purchaseMessage(res.Outcome))
	}

	return &PurchaseResponse{
		Success:          res.Outcome == domain.OutcomeSuccess,
		Outcome:          string(res.Outcome),
		Message:          purchaseMessage(res.Outcome),
		Retryable:        res.Outcome.Retryable(),
		AttemptID:        res.AttemptID,
		GateRemaining:    res.GateRemaining,
		DurableRemaining: res.DurableRemaining,
		ErrorDetail:      res.ErrorDetail,
	}, nil
}

func (h *GRPCHandler) Resync(ctx context.Context, req *ResyncRequest) (*ResyncResponse, error) {
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "invalid product id")
	}

	res := h.gate.Resync(ctx, req.ProductID)

	switch res.Outcome {
	case domain.OutcomeSuccess:
		return &ResyncResponse{
			Success: true,
			Outcome: string(res.Outcome),
			Message: resyncMessage(res.Outcome),
			Stock:   res.Stock,
		}, nil
	case domain.OutcomeProductNotFound:
		return nil, status.Error(codes.NotFound, resyncMessage(res.Outcome))
	default:
		return nil, status.Error(codes.Unavailable, res.ErrorDetail)
	}
}

func (h *GRPCHandler) GetStock(ctx context.Context, req *GetStockRequest) (*GetStockResponse, error) {
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "invalid product id")
	}

	st, err := h.gate.GetStock(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, status.Error(codes.NotFound, "product not found")
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	return &GetStockResponse{
		ProductID:   st.ProductID,
		Gate:        st.Gate,
		GatePresent: st.GatePresent,
		Durable:     st.Durable,
	}, nil
}

// LoggingInterceptor logs every unary call with its status code.
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(logger.WithContext(ctx), req)

		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("latency", time.Since(start)).
			Msg("grpc call handled")

		return resp, err
	}
}
