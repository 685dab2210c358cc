// internal/domain/request/service.go
package request

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/domain/notification"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/metrics"
	"github.com/your-org/asset-inventory/internal/pkg/txn"
)

// Roles allowed to act on requests
const (
	RoleLogisticApprover = "logistic_approver"
	RolePurchaseApprover = "purchase_approver"
	RoleAdmin            = "admin"
)

// StockService is what the lifecycle needs from the stock ledger
type StockService interface {
	Evaluate(ctx context.Context, name, brand string, requested decimal.Decimal) (*asset.Availability, error)
	ReceiveLots(ctx context.Context, lots []asset.NewLot, rc asset.ReceiveContext) ([]asset.Asset, error)
}

// Service handles request lifecycle business logic
type Service struct {
	repo     Repository
	tx       txn.Transactor
	stock    StockService
	activity activity.Recorder
	notifier notification.Dispatcher
	config   *config.Config
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewService creates a new request service
func NewService(
	repo Repository,
	tx txn.Transactor,
	stock StockService,
	recorder activity.Recorder,
	notifier notification.Dispatcher,
	cfg *config.Config,
	logger logrus.FieldLogger,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		stock:    stock,
		activity: recorder,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Actor identifies the user performing an operation
type Actor struct {
	ID   string
	Name string
	Role string
}

// CreateItemInput represents one requested item
type CreateItemInput struct {
	ItemName      string `json:"item_name" binding:"required"`
	ItemTypeBrand string `json:"item_type_brand" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	Unit          string `json:"unit"`
}

// CreateRequestInput represents request creation data
type CreateRequestInput struct {
	AllocationTarget AllocationTarget  `json:"allocation_target" binding:"required,oneof=USAGE INVENTORY"`
	OrderType        OrderType         `json:"order_type" binding:"required,oneof=REGULAR_STOCK URGENT PROJECT_BASED"`
	Division         string            `json:"division"`
	Project          string            `json:"project"`
	Justification    string            `json:"justification"`
	Items            []CreateItemInput `json:"items" binding:"required,min=1,dive"`
}

// ItemAdjustment changes the approved quantity of one item
type ItemAdjustment struct {
	ApprovedQuantity int    `json:"approved_quantity"`
	Reason           string `json:"reason"`
}

// ApproveInput represents an approval decision
type ApproveInput struct {
	Type        ApprovalType            `json:"type" binding:"required,oneof=logistic purchase"`
	Reason      string                  `json:"reason"`
	Adjustments map[uint]ItemAdjustment `json:"items"`
}

// Role returns the role that may give this approval
func (t ApprovalType) Role() string {
	switch t {
	case ApprovalPurchase:
		return RolePurchaseApprover
	default:
		return RoleLogisticApprover
	}
}

func (t ApprovalType) approvedStatus() Status {
	if t == ApprovalPurchase {
		return StatusPurchaseApproved
	}
	return StatusLogisticApproved
}

func (in *CreateRequestInput) validate() error {
	switch in.AllocationTarget {
	case AllocationUsage, AllocationInventory:
	default:
		return apperror.InvalidArgument("invalid allocation target %q", in.AllocationTarget)
	}
	switch in.OrderType {
	case OrderRegularStock, OrderUrgent, OrderProjectBased:
	default:
		return apperror.InvalidArgument("invalid order type %q", in.OrderType)
	}
	if len(in.Items) == 0 {
		return apperror.InvalidArgument("at least one item is required")
	}
	for _, item := range in.Items {
		if strings.TrimSpace(item.ItemName) == "" {
			return apperror.InvalidArgument("item name is required")
		}
		if item.Quantity <= 0 {
			return apperror.InvalidArgument("quantity for %s must be greater than zero", item.ItemName)
		}
	}
	return nil
}

// Create classifies every item against current stock and stores the request
// with the initial status derived from the classification.
func (s *Service) Create(ctx context.Context, in *CreateRequestInput, actor Actor) (*Request, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var created *Request
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		items := make([]RequestItem, 0, len(in.Items))
		for _, item := range in.Items {
			classified, err := s.classifyItem(ctx, item)
			if err != nil {
				return err
			}
			items = append(items, *classified)
		}

		now := s.now()
		seq, err := s.repo.NextDocumentNumber(ctx, now)
		if err != nil {
			return err
		}

		r := &Request{
			DocNumber:        FormatDocNumber(s.config.Inventory.RequestNumberPrefix, now, seq),
			AllocationTarget: in.AllocationTarget,
			OrderType:        in.OrderType,
			RequesterID:      actor.ID,
			RequesterName:    actor.Name,
			Division:         in.Division,
			Project:          in.Project,
			Justification:    in.Justification,
			Items:            items,
		}
		r.Status = initialStatus(r)
		if r.Status == StatusCompleted {
			r.CompletedAt = &now
			r.CompletedBy = actor.Name
		}

		if err := s.repo.CreateRequestWithItems(ctx, r); err != nil {
			return err
		}
		r.PartiallyRegisteredItems = RegistrationCounts{}

		if err := s.activity.Record(ctx, activity.Entry{
			EntityType: activity.EntityRequest,
			EntityID:   fmt.Sprint(r.ID),
			Action:     activity.ActionCreate,
			Actor:      actor.Name,
			Changes: map[string]interface{}{
				"doc_number": r.DocNumber,
				"status":     r.Status,
				"items":      len(r.Items),
			},
		}); err != nil {
			return err
		}

		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition("", string(created.Status))
	s.logger.WithFields(logrus.Fields{
		"request_id": created.ID,
		"doc_number": created.DocNumber,
		"status":     created.Status,
	}).Info("Request created")

	var notices []notification.Notice
	if created.Status == StatusPending {
		for _, role := range []string{RoleLogisticApprover, RolePurchaseApprover} {
			notices = append(notices, s.notice(created, notification.ForRole(role), notification.TypeApprovalNeeded,
				fmt.Sprintf("Request %s needs approval", created.DocNumber)))
		}
	} else {
		notices = append(notices, s.statusNotice(created))
	}
	s.dispatch(ctx, notices...)

	return created, nil
}

func (s *Service) classifyItem(ctx context.Context, in CreateItemInput) (*RequestItem, error) {
	availability, err := s.stock.Evaluate(ctx, in.ItemName, in.ItemTypeBrand, decimal.NewFromInt(int64(in.Quantity)))
	if err != nil {
		return nil, err
	}

	item := &RequestItem{
		ItemName:      strings.TrimSpace(in.ItemName),
		ItemTypeBrand: strings.TrimSpace(in.ItemTypeBrand),
		Quantity:      in.Quantity,
		Unit:          in.Unit,
	}

	switch {
	case availability.IsSufficient && availability.IsFragmented:
		item.Status = ItemStockAllocated
		item.Reason = fmt.Sprintf("Available in stock across %d lots (%s in storage)",
			len(availability.LotIDs), availability.Available.String())
	case availability.IsSufficient:
		item.Status = ItemStockAllocated
		item.Reason = fmt.Sprintf("Available in stock (%s in storage)", availability.Available.String())
	default:
		item.Status = ItemProcurementNeeded
		item.Reason = fmt.Sprintf("Insufficient stock: %s available, deficit %s",
			availability.Available.String(), availability.Deficit.String())
	}
	return item, nil
}

func initialStatus(r *Request) Status {
	if !r.AllItemsHaveStatus(ItemStockAllocated) || r.OrderType != OrderRegularStock {
		return StatusPending
	}
	if r.AllocationTarget == AllocationInventory {
		return StatusCompleted
	}
	return StatusAwaitingHandover
}

// Get returns a request with its items
func (s *Service) Get(ctx context.Context, id uint) (*Request, error) {
	return s.repo.FindRequestByID(ctx, id, false)
}

// Approve applies per-item adjustments and moves a PENDING request to the
// approved status of the approval type, or to REJECTED when every item
// ends up rejected.
func (s *Service) Approve(ctx context.Context, id uint, in *ApproveInput, actor Actor) (*Request, error) {
	if in.Type != ApprovalLogistic && in.Type != ApprovalPurchase {
		return nil, apperror.InvalidArgument("invalid approval type %q", in.Type)
	}

	var (
		updated *Request
		from    Status
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.FindRequestByID(ctx, id, true)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return apperror.InvalidState("request %s cannot be approved in status %s", r.DocNumber, r.Status)
		}
		from = r.Status

		for itemID, adj := range in.Adjustments {
			item, ok := r.FindItem(itemID)
			if !ok {
				return apperror.InvalidArgument("item %d does not belong to request %s", itemID, r.DocNumber)
			}
			if adj.ApprovedQuantity < 0 || adj.ApprovedQuantity > item.Quantity {
				return apperror.InvalidArgument("approved quantity for %s must be between 0 and %d",
					item.ItemName, item.Quantity)
			}
		}

		changes := make(map[string]interface{}, len(in.Adjustments))
		for i := range r.Items {
			item := &r.Items[i]
			adj, ok := in.Adjustments[item.ID]
			if !ok {
				continue
			}

			approved := adj.ApprovedQuantity
			item.ApprovedQuantity = &approved
			switch {
			case approved == 0:
				item.Status = ItemRejected
			case approved < item.Quantity:
				item.Status = ItemPartial
			default:
				item.Status = ItemApproved
			}
			if adj.Reason != "" {
				item.Reason = adj.Reason
			}

			if err := s.repo.UpdateRequestItem(ctx, item); err != nil {
				return err
			}
			changes[fmt.Sprint(item.ID)] = map[string]interface{}{
				"status":            item.Status,
				"approved_quantity": approved,
			}
		}

		now := s.now()
		if r.AllItemsHaveStatus(ItemRejected) {
			r.Status = StatusRejected
			r.RejectedBy = actor.Name
			r.RejectedAt = &now
			r.RejectionReason = in.Reason
			if r.RejectionReason == "" {
				r.RejectionReason = "All items rejected during approval"
			}
		} else {
			r.Status = in.Type.approvedStatus()
			if in.Type == ApprovalPurchase {
				r.PurchaseApprovedBy = actor.Name
				r.PurchaseApprovedAt = &now
			} else {
				r.LogisticApprovedBy = actor.Name
				r.LogisticApprovedAt = &now
			}
		}

		if err := s.repo.UpdateRequestStatus(ctx, r); err != nil {
			return err
		}

		if err := s.activity.Record(ctx, activity.Entry{
			EntityType: activity.EntityRequest,
			EntityID:   fmt.Sprint(r.ID),
			Action:     activity.ActionApprove,
			Actor:      actor.Name,
			Changes: map[string]interface{}{
				"approval_type": in.Type,
				"from":          from,
				"to":            r.Status,
				"items":         changes,
			},
		}); err != nil {
			return err
		}

		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, updated, from)
	return updated, nil
}

// Reject moves any non-terminal request to REJECTED
func (s *Service) Reject(ctx context.Context, id uint, reason string, actor Actor) (*Request, error) {
	return s.transition(ctx, id, StatusRejected, activity.ActionReject, actor, func(r *Request) error {
		if r.IsTerminal() {
			return apperror.InvalidState("request %s cannot be rejected in status %s", r.DocNumber, r.Status)
		}
		now := s.now()
		r.RejectedBy = actor.Name
		r.RejectionReason = reason
		r.RejectedAt = &now
		return nil
	})
}

// MarkArrived records that procured items arrived
func (s *Service) MarkArrived(ctx context.Context, id uint, actor Actor) (*Request, error) {
	return s.transition(ctx, id, StatusArrived, activity.ActionArrive, actor, func(r *Request) error {
		if s.config.Inventory.StrictTransitions && !isValidStatusTransition(r.Status, StatusArrived) {
			return apperror.InvalidState("request %s cannot be marked arrived in status %s", r.DocNumber, r.Status)
		}
		now := s.now()
		r.ArrivedBy = actor.Name
		r.ArrivedAt = &now
		return nil
	})
}

// Complete closes the request
func (s *Service) Complete(ctx context.Context, id uint, actor Actor) (*Request, error) {
	return s.transition(ctx, id, StatusCompleted, activity.ActionComplete, actor, func(r *Request) error {
		if s.config.Inventory.StrictTransitions && !isValidStatusTransition(r.Status, StatusCompleted) {
			return apperror.InvalidState("request %s cannot be completed in status %s", r.DocNumber, r.Status)
		}
		now := s.now()
		r.CompletedBy = actor.Name
		r.CompletedAt = &now
		return nil
	})
}

// transition loads and locks the request, lets check validate and stamp it,
// then stores the new status with an activity entry.
func (s *Service) transition(ctx context.Context, id uint, to Status, action string, actor Actor, check func(r *Request) error) (*Request, error) {
	var (
		updated *Request
		from    Status
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.FindRequestByID(ctx, id, true)
		if err != nil {
			return err
		}
		if err := check(r); err != nil {
			return err
		}

		from = r.Status
		r.Status = to
		if err := s.repo.UpdateRequestStatus(ctx, r); err != nil {
			return err
		}

		if err := s.activity.Record(ctx, activity.Entry{
			EntityType: activity.EntityRequest,
			EntityID:   fmt.Sprint(r.ID),
			Action:     action,
			Actor:      actor.Name,
			Changes: map[string]interface{}{
				"from": from,
				"to":   to,
			},
		}); err != nil {
			return err
		}

		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, updated, from)
	return updated, nil
}

// Delete soft-deletes a PENDING or REJECTED request
func (s *Service) Delete(ctx context.Context, id uint, actor Actor) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.FindRequestByID(ctx, id, true)
		if err != nil {
			return err
		}
		if !r.CanBeDeleted() {
			return apperror.InvalidState("request %s cannot be deleted in status %s", r.DocNumber, r.Status)
		}

		if err := s.repo.DeleteRequest(ctx, id); err != nil {
			return err
		}

		return s.activity.Record(ctx, activity.Entry{
			EntityType: activity.EntityRequest,
			EntityID:   fmt.Sprint(r.ID),
			Action:     activity.ActionDelete,
			Actor:      actor.Name,
			Changes: map[string]interface{}{
				"doc_number": r.DocNumber,
				"status":     r.Status,
			},
		})
	})
}

func (s *Service) afterTransition(ctx context.Context, r *Request, from Status) {
	metrics.ObserveTransition(string(from), string(r.Status))
	s.logger.WithFields(logrus.Fields{
		"request_id": r.ID,
		"doc_number": r.DocNumber,
		"from":       from,
		"to":         r.Status,
	}).Info("Request status changed")

	if from != r.Status {
		s.dispatch(ctx, s.statusNotice(r))
	}
}

func (s *Service) statusNotice(r *Request) notification.Notice {
	switch r.Status {
	case StatusRejected:
		return s.notice(r, r.RequesterID, notification.TypeRejected,
			fmt.Sprintf("Request %s was rejected: %s", r.DocNumber, r.RejectionReason))
	case StatusAwaitingHandover:
		return s.notice(r, r.RequesterID, notification.TypeReadyToHandover,
			fmt.Sprintf("Request %s is ready for handover", r.DocNumber))
	default:
		return s.notice(r, r.RequesterID, notification.TypeStatusChanged,
			fmt.Sprintf("Request %s is now %s", r.DocNumber, r.Status))
	}
}

func (s *Service) notice(r *Request, recipient string, t notification.Type, message string) notification.Notice {
	return notification.Notice{
		Recipient:     recipient,
		Type:          t,
		ReferenceType: activity.EntityRequest,
		ReferenceID:   fmt.Sprint(r.ID),
		Message:       message,
	}
}

// dispatch sends notices after commit. Failures are logged, the committed
// operation stands.
func (s *Service) dispatch(ctx context.Context, notices ...notification.Notice) {
	if s.notifier == nil {
		return
	}
	for _, n := range notices {
		if n.Recipient == "" {
			continue
		}
		if err := s.notifier.Dispatch(ctx, n); err != nil {
			s.logger.WithFields(logrus.Fields{
				"recipient":    n.Recipient,
				"type":         n.Type,
				"reference_id": n.ReferenceID,
			}).WithError(err).Warn("Failed to dispatch notification")
		}
	}
}

// isValidStatusTransition reports whether the lifecycle allows from -> to.
// The empty status stands for a request being created.
func isValidStatusTransition(from, to Status) bool {
	validTransitions := map[Status][]Status{
		"": {
			StatusPending,
			StatusAwaitingHandover,
			StatusCompleted,
		},
		StatusPending: {
			StatusLogisticApproved,
			StatusPurchaseApproved,
			StatusRejected,
		},
		StatusLogisticApproved: {
			StatusArrived,
			StatusAwaitingHandover,
			StatusRejected,
		},
		StatusPurchaseApproved: {
			StatusArrived,
			StatusAwaitingHandover,
			StatusRejected,
		},
		StatusArrived: {
			StatusAwaitingHandover,
			StatusCompleted,
			StatusRejected,
		},
		StatusAwaitingHandover: {
			StatusCompleted,
			StatusRejected,
		},
	}

	allowedStatuses, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, status := range allowedStatuses {
		if status == to {
			return true
		}
	}
	return false
}
