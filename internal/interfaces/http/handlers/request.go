// internal/interfaces/http/handlers/request.go
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/domain/request"
	"github.com/your-org/asset-inventory/internal/interfaces/http/middleware"
)

// HistoryReader lists the activity log of an entity
type HistoryReader interface {
	ListForEntity(ctx context.Context, entityType, entityID string) ([]activity.Log, error)
}

// RequestHandler handles request lifecycle endpoints
type RequestHandler struct {
	requestService *request.Service
	history        HistoryReader
	config         *config.Config
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requestService *request.Service, history HistoryReader, cfg *config.Config) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		history:        history,
		config:         cfg,
	}
}

// CreateRequest handles POST /requests
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var req request.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var created *request.Request
	err := retryOnConflict(c.Request.Context(), h.config, func(ctx context.Context) error {
		var err error
		created, err = h.requestService.Create(ctx, &req, actorFrom(c))
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Request created successfully",
		"data":    created,
	})
}

// GetRequest handles GET /requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	r, err := h.requestService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Request retrieved successfully",
		"data":    r,
	})
}

// DeleteRequest handles DELETE /requests/:id
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.requestService.Delete(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Request deleted successfully",
	})
}

// ApproveRequest handles POST /requests/:id/approve. The caller's role must
// match the approval type.
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req request.ApproveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actor := actorFrom(c)
	if !middleware.HasRole(actor.Role, req.Type.Role()) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": fmt.Sprintf("%s approval requires role %s", req.Type, req.Type.Role()),
		})
		return
	}

	h.respondTransition(c, "Request approved successfully", func(ctx context.Context) (*request.Request, error) {
		return h.requestService.Approve(ctx, id, &req, actor)
	})
}

// RejectRequest handles POST /requests/:id/reject
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	h.respondTransition(c, "Request rejected successfully", func(ctx context.Context) (*request.Request, error) {
		return h.requestService.Reject(ctx, id, req.Reason, actorFrom(c))
	})
}

// ArriveRequest handles POST /requests/:id/arrive
func (h *RequestHandler) ArriveRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	h.respondTransition(c, "Request marked as arrived", func(ctx context.Context) (*request.Request, error) {
		return h.requestService.MarkArrived(ctx, id, actorFrom(c))
	})
}

// CompleteRequest handles POST /requests/:id/complete
func (h *RequestHandler) CompleteRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	h.respondTransition(c, "Request completed successfully", func(ctx context.Context) (*request.Request, error) {
		return h.requestService.Complete(ctx, id, actorFrom(c))
	})
}

func (h *RequestHandler) respondTransition(c *gin.Context, message string, fn func(ctx context.Context) (*request.Request, error)) {
	var updated *request.Request
	err := retryOnConflict(c.Request.Context(), h.config, func(ctx context.Context) error {
		var err error
		updated, err = fn(ctx)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    updated,
	})
}

// RegisterAssets handles POST /requests/:id/register
func (h *RequestHandler) RegisterAssets(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Assets []asset.NewLot `json:"assets" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var result *request.RegistrationResult
	err := retryOnConflict(c.Request.Context(), h.config, func(ctx context.Context) error {
		var err error
		result, err = h.requestService.RegisterAssets(ctx, id, req.Assets, actorFrom(c))
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Assets registered successfully",
		"data":    result,
	})
}

// GetRequestActivity handles GET /requests/:id/activity
func (h *RequestHandler) GetRequestActivity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	logs, err := h.history.ListForEntity(c.Request.Context(), activity.EntityRequest, fmt.Sprint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Request activity retrieved successfully",
		"data":    logs,
	})
}
