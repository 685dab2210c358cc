// internal/interfaces/http/handlers/stock.go
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/domain/asset"
)

// StockHandler handles stock ledger endpoints
type StockHandler struct {
	stockService *asset.Service
	config       *config.Config
}

// NewStockHandler creates a new stock handler
func NewStockHandler(stockService *asset.Service, cfg *config.Config) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		config:       cfg,
	}
}

// GetAvailability handles GET /stock/availability?name=&brand=&quantity=
func (h *StockHandler) GetAvailability(c *gin.Context) {
	quantity, err := decimal.NewFromString(c.Query("quantity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid quantity",
		})
		return
	}

	availability, err := h.stockService.Evaluate(c.Request.Context(), c.Query("name"), c.Query("brand"), quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Availability evaluated successfully",
		"data":    availability,
	})
}

// GetSummary handles GET /stock/summary
func (h *StockHandler) GetSummary(c *gin.Context) {
	summary, err := h.stockService.Summary(c.Request.Context(), asset.StockFilter{
		Name:  c.Query("name"),
		Brand: c.Query("brand"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock summary retrieved successfully",
		"data":    summary,
	})
}

// ConsumeStock handles POST /stock/consume
func (h *StockHandler) ConsumeStock(c *gin.Context) {
	var req struct {
		Items []asset.ConsumeItem `json:"items" binding:"required,min=1,dive"`
		asset.ConsumeContext
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	req.PerformedBy = actorFrom(c).Name

	var result *asset.ConsumeResult
	err := retryOnConflict(c.Request.Context(), h.config, func(ctx context.Context) error {
		var err error
		result, err = h.stockService.Consume(ctx, req.Items, req.ConsumeContext)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock consumed successfully",
		"data":    result,
	})
}

// GetMovements handles GET /stock/lots/:id/movements
func (h *StockHandler) GetMovements(c *gin.Context) {
	movements, err := h.stockService.GetMovements(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Movements retrieved successfully",
		"data":    movements,
	})
}

// ReconcileLot handles GET /stock/lots/:id/reconcile
func (h *StockHandler) ReconcileLot(c *gin.Context) {
	reconciliation, err := h.stockService.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Lot reconciled",
		"data":    reconciliation,
	})
}
