// internal/pkg/txn/txn.go
package txn

import (
	"context"

	"gorm.io/gorm"
)

// Transactor runs a unit of work inside a single database transaction.
// Nested calls join the outer transaction.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// WithTx stores the transaction handle in the context
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction bound to ctx, if any
func FromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// DB returns the transaction bound to ctx or the base connection
func DB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// GormTransactor implements Transactor on top of gorm
type GormTransactor struct {
	db        *gorm.DB
	translate func(error) error
}

// Option configures a GormTransactor
type Option func(*GormTransactor)

// WithErrorTranslator classifies errors raised while beginning or
// committing the transaction. Errors returned by the unit of work are
// passed through untouched.
func WithErrorTranslator(fn func(error) error) Option {
	return func(t *GormTransactor) {
		t.translate = fn
	}
}

// NewGormTransactor creates a new gorm backed transactor
func NewGormTransactor(db *gorm.DB, opts ...Option) *GormTransactor {
	t := &GormTransactor{db: db}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RunInTransaction commits when fn returns nil and rolls back otherwise
func (t *GormTransactor) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}

	var fnErr error
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(WithTx(ctx, tx))
		return fnErr
	})
	if err != nil && fnErr == nil && t.translate != nil {
		return t.translate(err)
	}
	return err
}
