package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"api_sales/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// salesHandler holds the sales service and implements HTTP handlers for sales operations.
type salesHandler struct {
	salesService *sales.Service
	logger       *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(salesService *sales.Service, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

type updateItemQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// handleCreateSale handles the POST /sales endpoint.
func (h *salesHandler) handleCreateSale(ctx *gin.Context) {
	var cmd sales.CreateSaleCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	sale, err := h.salesService.CreateSale(ctx.Request.Context(), cmd)
	if err != nil {
		h.writeError(ctx, "failed to create sale", err)
		return
	}

	ctx.JSON(http.StatusCreated, sale)
}

// handleGetSale handles GET /sales/:id.
func (h *salesHandler) handleGetSale(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sale, err := h.salesService.GetSale(ctx.Request.Context(), id)
	if err != nil {
		h.writeError(ctx, "failed to get sale", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleGetSaleByNumber handles GET /sales/number/:number.
func (h *salesHandler) handleGetSaleByNumber(ctx *gin.Context) {
	sale, err := h.salesService.GetSaleByNumber(ctx.Request.Context(), ctx.Param("number"))
	if err != nil {
		h.writeError(ctx, "failed to get sale", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleListSales handles GET /sales with optional filters.
func (h *salesHandler) handleListSales(ctx *gin.Context) {
	filter, err := parseFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, metadata, err := h.salesService.ListSales(ctx.Request.Context(), filter)
	if err != nil {
		h.writeError(ctx, "failed to search sales", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"results": results, "metadata": metadata})
}

// handleUpdateSale handles PUT /sales/:id.
func (h *salesHandler) handleUpdateSale(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var cmd sales.UpdateSaleCommand
	if err := ctx.ShouldBindJSON(&cmd); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if cmd.ID != "" && cmd.ID != id {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "id in route must match id in request body"})
		return
	}
	cmd.ID = id

	sale, err := h.salesService.UpdateSale(ctx.Request.Context(), cmd)
	if err != nil {
		h.writeError(ctx, "failed to update sale", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleCancelSale handles PATCH /sales/:id/cancel.
func (h *salesHandler) handleCancelSale(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sale, err := h.salesService.CancelSale(ctx.Request.Context(), id)
	if err != nil {
		h.writeError(ctx, "failed to cancel sale", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleAddItem handles POST /sales/:id/items.
func (h *salesHandler) handleAddItem(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var in sales.ItemInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	sale, err := h.salesService.AddItem(ctx.Request.Context(), id, in)
	if err != nil {
		h.writeError(ctx, "failed to add item", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleUpdateItemQuantity handles PATCH /sales/:id/items/:itemId.
func (h *salesHandler) handleUpdateItemQuantity(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(ctx, "itemId")
	if !ok {
		return
	}
	var req updateItemQuantityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	sale, err := h.salesService.UpdateItemQuantity(ctx.Request.Context(), id, itemID, req.Quantity)
	if err != nil {
		h.writeError(ctx, "failed to update item", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleRemoveItem handles DELETE /sales/:id/items/:itemId.
func (h *salesHandler) handleRemoveItem(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(ctx, "itemId")
	if !ok {
		return
	}
	sale, err := h.salesService.RemoveItem(ctx.Request.Context(), id, itemID)
	if err != nil {
		h.writeError(ctx, "failed to remove item", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// writeError maps service errors onto HTTP statuses.
func (h *salesHandler) writeError(ctx *gin.Context, msg string, err error) {
	var verr *sales.ValidationError
	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verr.Fields})
	case errors.Is(err, sales.ErrValidation):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, sales.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, sales.ErrConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sales.ErrBusinessRule):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("path", ctx.FullPath()))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func pathID(ctx *gin.Context, name string) (string, bool) {
	id := ctx.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return "", false
	}
	return id, true
}

func parseFilter(ctx *gin.Context) (sales.SaleFilter, error) {
	filter := sales.SaleFilter{
		Customer:  ctx.Query("customer"),
		Branch:    ctx.Query("branch"),
		CreatedBy: ctx.Query("created_by"),
	}

	var err error
	if v := ctx.Query("from"); v != "" {
		if filter.From, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, errors.New("from must be an RFC3339 timestamp")
		}
	}
	if v := ctx.Query("to"); v != "" {
		if filter.To, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, errors.New("to must be an RFC3339 timestamp")
		}
	}
	if v := ctx.Query("cancelled"); v != "" {
		cancelled, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("cancelled must be a boolean")
		}
		filter.Cancelled = &cancelled
	}
	if v := ctx.Query("page"); v != "" {
		if filter.Page, err = strconv.Atoi(v); err != nil {
			return filter, errors.New("page must be a number")
		}
	}
	if v := ctx.Query("size"); v != "" {
		if filter.PageSize, err = strconv.Atoi(v); err != nil {
			return filter, errors.New("size must be a number")
		}
	}
	return filter, nil
}
