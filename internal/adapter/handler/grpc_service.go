package handler

import (
	"context"

	"google.golang.org/grpc"
)

const stockGateServiceName = "flashsale.v1.StockGate"

const (
	purchaseMethod = "/" + stockGateServiceName + "/Purchase"
	resyncMethod   = "/" + stockGateServiceName + "/Resync"
	getStockMethod = "/" + stockGateServiceName + "/GetStock"
)

type PurchaseRequest struct {
	ProductID   int64 `json:"product_id"`
	AllowReseed bool  `json:"allow_reseed"`
}

type PurchaseResponse struct {
	Success          bool   `json:"success"`
	Outcome          string `json:"outcome"`
	Message          string `json:"message"`
	Retryable        bool   `json:"retryable"`
	AttemptID        string `json:"attempt_id,omitempty"`
	GateRemaining    int64  `json:"gate_remaining,omitempty"`
	DurableRemaining int64  `json:"durable_remaining,omitempty"`
	ErrorDetail      string `json:"error_detail,omitempty"`
}

type ResyncRequest struct {
	ProductID int64 `json:"product_id"`
}

type ResyncResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Stock   int64  `json:"stock"`
}

type GetStockRequest struct {
	ProductID int64 `json:"product_id"`
}

type GetStockResponse struct {
	ProductID   int64 `json:"product_id"`
	Gate        int64 `json:"gate"`
	GatePresent bool  `json:"gate_present"`
	Durable     int64 `json:"durable"`
}

type StockGateServer interface {
	Purchase(context.Context, *PurchaseRequest) (*PurchaseResponse, error)
	Resync(context.Context, *ResyncRequest) (*ResyncResponse, error)
	GetStock(context.Context, *GetStockRequest) (*GetStockResponse, error)
}

func RegisterStockGateServer(s grpc.ServiceRegistrar, srv StockGateServer) {
	s.RegisterService(&stockGateServiceDesc, srv)
}

var stockGateServiceDesc = grpc.ServiceDesc{
	ServiceName: stockGateServiceName,
	HandlerType: (*StockGateServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Purchase",
			Handler:    unaryHandler(purchaseMethod, StockGateServer.Purchase),
		},
		{
			MethodName: "Resync",
			Handler:    unaryHandler(resyncMethod, StockGateServer.Resync),
		},
		{
			MethodName: "GetStock",
			Handler:    unaryHandler(getStockMethod, StockGateServer.GetStock),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flashsale/v1/stock_gate.proto",
}

func unaryHandler[Req, Resp any](fullMethod string, call func(StockGateServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StockGateServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StockGateServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StockGateClient calls the StockGate service using the JSON codec.
type StockGateClient struct {
	cc grpc.ClientConnInterface
}

func NewStockGateClient(cc grpc.ClientConnInterface) *StockGateClient {
	return &StockGateClient{cc: cc}
}

func (c *StockGateClient) Purchase(ctx context.Context, in *PurchaseRequest, opts ...grpc.CallOption) (*PurchaseResponse, error) {
	out := new(PurchaseResponse)
	if err := c.cc.Invoke(ctx, purchaseMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockGateClient) Resync(ctx context.Context, in *ResyncRequest, opts ...grpc.CallOption) (*ResyncResponse, error) {
	out := new(ResyncResponse)
	if err := c.cc.Invoke(ctx, resyncMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StockGateClient) GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*GetStockResponse, error) {
	out := new(GetStockResponse)
	if err := c.cc.Invoke(ctx, getStockMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
}
