package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/core/service"
)

type GRPCHandler struct {
	svc    *service.ReconciliationService
	logger *zap.Logger
}

var _ ReconciliationServer = (*GRPCHandler)(nil)

func NewGRPCHandler(svc *service.ReconciliationService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{svc: svc, logger: logger}
}

func (h *GRPCHandler) CreateDeliveryItem(ctx context.Context, req *CreateDeliveryItemRequest) (*DeliveryItemReply, error) {
	item, err := h.svc.CreateDeliveryItem(ctx, service.CreateItemInput{
		DeliveryID:       req.DeliveryID,
		Item:             domain.ItemIdentity{Type: req.ItemType, Key: req.ItemKey},
		SourceLocation:   req.SourceLocation,
		DeclaredQuantity: int(req.DeclaredQuantity),
		ReceiverIdentity: req.ReceiverIdentity,
	})
	if err != nil {
		return nil, h.fail("CreateDeliveryItem", err)
	}
	return &DeliveryItemReply{Item: item}, nil
}

func (h *GRPCHandler) ReceiveDeliveryItem(ctx context.Context, req *ReceiveDeliveryItemRequest) (*DeliveryItemReply, error) {
	item, err := h.svc.ReceiveDeliveryItem(ctx, service.ReceiveInput{
		ItemID:          req.ItemID,
		Receiver:        req.Receiver,
		ActualQuantity:  int(req.ActualQuantity),
		ExpectedVersion: int(req.ExpectedVersion),
	})
	if err != nil {
		return nil, h.fail("ReceiveDeliveryItem", err)
	}
	return &DeliveryItemReply{Item: item}, nil
}

func (h *GRPCHandler) ResolveMismatch(ctx context.Context, req *ResolveMismatchRequest) (*DeliveryItemReply, error) {
	item, err := h.svc.ResolveMismatch(ctx, req.ItemID, domain.Resolution(req.Resolution))
	if err != nil {
		return nil, h.fail("ResolveMismatch", err)
	}
	return &DeliveryItemReply{Item: item}, nil
}

func (h *GRPCHandler) GetDeliveryCompletion(ctx context.Context, req *GetDeliveryCompletionRequest) (*DeliveryCompletionReply, error) {
	completion, err := h.svc.GetDeliveryCompletion(ctx, req.DeliveryID)
	if err != nil {
		return nil, h.fail("GetDeliveryCompletion", err)
	}
	return &DeliveryCompletionReply{DeliveryID: req.DeliveryID, Completion: completion}, nil
}

func (h *GRPCHandler) fail(method string, err error) error {
	out := grpcError(err)
	if publicMessage(err) == "internal error" {
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return out
}
