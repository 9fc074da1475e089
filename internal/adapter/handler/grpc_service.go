package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/branch-delivery/internal/core/domain"
)

const reconciliationServiceName = "branchdelivery.v1.Reconciliation"

type CreateDeliveryItemRequest struct {
	DeliveryID       string `json:"delivery_id"`
	ItemType         string `json:"item_type"`
	ItemKey          string `json:"item_key"`
	SourceLocation   string `json:"source_location,omitempty"`
	DeclaredQuantity int32  `json:"declared_quantity"`
	ReceiverIdentity string `json:"receiver_identity,omitempty"`
}

type ReceiveDeliveryItemRequest struct {
	ItemID          string `json:"item_id"`
	Receiver        string `json:"receiver"`
	ActualQuantity  int32  `json:"actual_quantity"`
	ExpectedVersion int32  `json:"expected_version,omitempty"`
}

type ResolveMismatchRequest struct {
	ItemID     string `json:"item_id"`
	Resolution string `json:"resolution"`
}

type GetDeliveryCompletionRequest struct {
	DeliveryID string `json:"delivery_id"`
}

type DeliveryItemReply struct {
	Item domain.DeliveryItem `json:"item"`
}

type DeliveryCompletionReply struct {
	DeliveryID string            `json:"delivery_id"`
	Completion domain.Completion `json:"completion"`
}

type ReconciliationServer interface {
	CreateDeliveryItem(context.Context, *CreateDeliveryItemRequest) (*DeliveryItemReply, error)
	ReceiveDeliveryItem(context.Context, *ReceiveDeliveryItemRequest) (*DeliveryItemReply, error)
	ResolveMismatch(context.Context, *ResolveMismatchRequest) (*DeliveryItemReply, error)
	GetDeliveryCompletion(context.Context, *GetDeliveryCompletionRequest) (*DeliveryCompletionReply, error)
}

func RegisterReconciliationServer(s grpc.ServiceRegistrar, srv ReconciliationServer) {
	s.RegisterService(&reconciliationServiceDesc, srv)
}

var reconciliationServiceDesc = grpc.ServiceDesc{
	ServiceName: reconciliationServiceName,
	HandlerType: (*ReconciliationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateDeliveryItem",
			Handler:    unaryHandler("CreateDeliveryItem", ReconciliationServer.CreateDeliveryItem),
		},
		{
			MethodName: "ReceiveDeliveryItem",
			Handler:    unaryHandler("ReceiveDeliveryItem", ReconciliationServer.ReceiveDeliveryItem),
		},
		{
			MethodName: "ResolveMismatch",
			Handler:    unaryHandler("ResolveMismatch", ReconciliationServer.ResolveMismatch),
		},
		{
			MethodName: "GetDeliveryCompletion",
			Handler:    unaryHandler("GetDeliveryCompletion", ReconciliationServer.GetDeliveryCompletion),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "branchdelivery/v1/reconciliation",
}

func fullMethod(method string) string {
	return "/" + reconciliationServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(ReconciliationServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReconciliationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReconciliationServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ReconciliationClient calls the service over any gRPC connection using the
// JSON codec.
type ReconciliationClient struct {
	cc grpc.ClientConnInterface
}

func NewReconciliationClient(cc grpc.ClientConnInterface) *ReconciliationClient {
	return &ReconciliationClient{cc: cc}
}

func (c *ReconciliationClient) CreateDeliveryItem(ctx context.Context, in *CreateDeliveryItemRequest, opts ...grpc.CallOption) (*DeliveryItemReply, error) {
	out := new(DeliveryItemReply)
	return out, c.invoke(ctx, "CreateDeliveryItem", in, out, opts)
}

func (c *ReconciliationClient) ReceiveDeliveryItem(ctx context.Context, in *ReceiveDeliveryItemRequest, opts ...grpc.CallOption) (*DeliveryItemReply, error) {
	out := new(DeliveryItemReply)
	return out, c.invoke(ctx, "ReceiveDeliveryItem", in, out, opts)
}

func (c *ReconciliationClient) ResolveMismatch(ctx context.Context, in *ResolveMismatchRequest, opts ...grpc.CallOption) (*DeliveryItemReply, error) {
	out := new(DeliveryItemReply)
	return out, c.invoke(ctx, "ResolveMismatch", in, out, opts)
}

func (c *ReconciliationClient) GetDeliveryCompletion(ctx context.Context, in *GetDeliveryCompletionRequest, opts ...grpc.CallOption) (*DeliveryCompletionReply, error) {
	out := new(DeliveryCompletionReply)
	return out, c.invoke(ctx, "GetDeliveryCompletion", in, out, opts)
}

func (c *ReconciliationClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(jsonCodec{})}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}
