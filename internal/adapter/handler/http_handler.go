package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rl1809/branch-delivery/internal/core/domain"
	"github.com/rl1809/branch-delivery/internal/core/service"
	"github.com/rl1809/branch-delivery/internal/port"
)

type HTTPHandler struct {
	svc     *service.ReconciliationService
	catalog port.Catalog
	logger  *zap.Logger
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateDeliveryRequest struct {
	SenderLocation   string `json:"sender_location"`
	ReceiverLocation string `json:"receiver_location"`
}

type CreateItemRequest struct {
	ItemType         string `json:"item_type"`
	ItemKey          string `json:"item_key"`
	SourceLocation   string `json:"source_location"`
	DeclaredQuantity int    `json:"declared_quantity"`
	ReceiverIdentity string `json:"receiver_identity"`
}

type ReceiveRequest struct {
	Receiver        string `json:"receiver"`
	ActualQuantity  *int   `json:"actual_quantity"`
	ExpectedVersion int    `json:"expected_version"`
}

type ResolveRequest struct {
	Resolution domain.Resolution `json:"resolution"`
}

type SetStockRequest struct {
	Location string `json:"location"`
	ItemType string `json:"item_type"`
	ItemKey  string `json:"item_key"`
	Quantity *int   `json:"quantity"`
}

type DeliveryView struct {
	domain.Delivery
	Completion domain.Completion `json:"completion"`
}

// ItemView decorates an item with its catalog entry when one is known.
type ItemView struct {
	domain.DeliveryItem
	Descriptor *port.ItemDescriptor `json:"descriptor,omitempty"`
}

type StockView struct {
	domain.StockKey
	Quantity int `json:"quantity"`
}

// NewHTTPHandler builds the REST surface. catalog may be nil.
func NewHTTPHandler(svc *service.ReconciliationService, catalog port.Catalog, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{svc: svc, catalog: catalog, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.HealthCheck)

	api := e.Group("/api")

	api.POST("/deliveries", h.createDelivery)
	api.GET("/deliveries/:id", h.getDelivery)
	api.POST("/deliveries/:id/complete", h.completeDelivery)
	api.GET("/deliveries/:id/items", h.listItems)
	api.POST("/deliveries/:id/items", h.createItem)
	api.GET("/deliveries/:id/progress", h.progress)

	api.GET("/items/:id", h.getItem)
	api.POST("/items/:id/receive", h.receive)
	api.POST("/items/:id/resolve", h.resolve)

	api.PUT("/stock", h.setStock)
	api.GET("/stock", h.getStock)
	api.GET("/stock/movements", h.movements)
}

func (h *HTTPHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) createDelivery(c echo.Context) error {
	var req CreateDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	d, err := h.svc.CreateDelivery(c.Request().Context(), req.SenderLocation, req.ReceiverLocation)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, DeliveryView{Delivery: d, Completion: domain.CompletionPending})
}

func (h *HTTPHandler) getDelivery(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.GetDelivery(ctx, c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	completion, err := h.svc.GetDeliveryCompletion(ctx, d.ID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, DeliveryView{Delivery: d, Completion: completion})
}

func (h *HTTPHandler) completeDelivery(c echo.Context) error {
	d, err := h.svc.CompleteDelivery(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, DeliveryView{Delivery: d, Completion: domain.CompletionComplete})
}

func (h *HTTPHandler) listItems(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListDeliveryItems(ctx, c.Param("id"), domain.ItemStatus(c.QueryParam("status")))
	if err != nil {
		return h.writeError(c, err)
	}

	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = h.view(ctx, it)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) createItem(c echo.Context) error {
	var req CreateItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	item, err := h.svc.CreateDeliveryItem(ctx, service.CreateItemInput{
		DeliveryID:       c.Param("id"),
		Item:             domain.ItemIdentity{Type: req.ItemType, Key: req.ItemKey},
		SourceLocation:   req.SourceLocation,
		DeclaredQuantity: req.DeclaredQuantity,
		ReceiverIdentity: req.ReceiverIdentity,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, h.view(ctx, item))
}

func (h *HTTPHandler) progress(c echo.Context) error {
	p, err := h.svc.GetDeliveryProgress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *HTTPHandler) getItem(c echo.Context) error {
	ctx := c.Request().Context()
	item, err := h.svc.GetDeliveryItem(ctx, c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(ctx, item))
}

func (h *HTTPHandler) receive(c echo.Context) error {
	var req ReceiveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ActualQuantity == nil {
		return badRequest(c, "actual_quantity is required")
	}

	ctx := c.Request().Context()
	item, err := h.svc.ReceiveDeliveryItem(ctx, service.ReceiveInput{
		ItemID:          c.Param("id"),
		Receiver:        req.Receiver,
		ActualQuantity:  *req.ActualQuantity,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(ctx, item))
}

func (h *HTTPHandler) resolve(c echo.Context) error {
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	item, err := h.svc.ResolveMismatch(ctx, c.Param("id"), req.Resolution)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.view(ctx, item))
}

func (h *HTTPHandler) setStock(c echo.Context) error {
	var req SetStockRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Quantity == nil {
		return badRequest(c, "quantity is required")
	}

	key := domain.StockKey{
		Location: req.Location,
		Item:     domain.ItemIdentity{Type: req.ItemType, Key: req.ItemKey},
	}
	if err := h.svc.SetStock(c.Request().Context(), key, *req.Quantity); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, StockView{StockKey: key, Quantity: *req.Quantity})
}

func (h *HTTPHandler) getStock(c echo.Context) error {
	key := stockKeyFromQuery(c)
	qty, err := h.svc.GetStock(c.Request().Context(), key)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, StockView{StockKey: key, Quantity: qty})
}

func (h *HTTPHandler) movements(c echo.Context) error {
	mvs, err := h.svc.ListMovements(c.Request().Context(), stockKeyFromQuery(c))
	if err != nil {
		return h.writeError(c, err)
	}
	if mvs == nil {
		mvs = []domain.StockMovement{}
	}
	return c.JSON(http.StatusOK, mvs)
}

func (h *HTTPHandler) view(ctx context.Context, item domain.DeliveryItem) ItemView {
	v := ItemView{DeliveryItem: item}
	if h.catalog == nil {
		return v
	}
	d, err := h.catalog.Resolve(ctx, item.Item)
	if err != nil {
		h.logger.Debug("catalog lookup failed", zap.String("item", item.Item.String()), zap.Error(err))
		return v
	}
	v.Descriptor = &d
	return v
}

func (h *HTTPHandler) writeError(c echo.Context, err error) error {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.JSON(code, ErrorResponse{Success: false, Message: publicMessage(err)})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Message: message})
}

func stockKeyFromQuery(c echo.Context) domain.StockKey {
	return domain.StockKey{
		Location: c.QueryParam("location"),
		Item:     domain.ItemIdentity{Type: c.QueryParam("item_type"), Key: c.QueryParam("item_key")},
	}
}
