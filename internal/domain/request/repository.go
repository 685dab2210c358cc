// internal/domain/request/repository.go
package request

import (
	"context"
	"time"
)

// Repository is the persistence contract of the request lifecycle. Every
// method joins the transaction bound to ctx when there is one.
type Repository interface {
	// CreateRequestWithItems inserts the request and its items, filling ids
	CreateRequestWithItems(ctx context.Context, r *Request) error
	// FindRequestByID loads the request with items and registration
	// counters. forUpdate locks the request row.
	FindRequestByID(ctx context.Context, id uint, forUpdate bool) (*Request, error)
	// UpdateRequestItem persists status, approved quantity and reason
	UpdateRequestItem(ctx context.Context, item *RequestItem) error
	// UpdateRequestStatus persists status, lifecycle stamps and the
	// registered flag of the request header
	UpdateRequestStatus(ctx context.Context, r *Request) error
	// IncrementRegistration adds delta to the counter of one request item
	IncrementRegistration(ctx context.Context, requestID, itemID uint, delta int) error
	// NextDocumentNumber reserves the next document sequence for day
	NextDocumentNumber(ctx context.Context, day time.Time) (int, error)
	// DeleteRequest soft-deletes the request and removes its items and counters
	DeleteRequest(ctx context.Context, id uint) error
}
