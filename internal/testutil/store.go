// Package testutil provides an in-memory store implementing the domain
// repositories, the transactor and the side-effect collaborators.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/domain/notification"
	"github.com/your-org/asset-inventory/internal/domain/request"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"gorm.io/gorm"
)

type regKey struct {
	requestID uint
	itemID    uint
}

type state struct {
	assets        map[string]asset.Asset
	movements     []asset.StockMovement
	requests      map[uint]request.Request
	items         map[uint]request.RequestItem
	registrations map[regKey]int
	activities    []activity.Entry
	assetSeq      map[int]int
	docSeq        map[string]int
	nextRequestID uint
	nextItemID    uint
	nextMoveID    uint
}

func (st *state) clone() *state {
	c := &state{
		assets:        make(map[string]asset.Asset, len(st.assets)),
		movements:     append([]asset.StockMovement(nil), st.movements...),
		requests:      make(map[uint]request.Request, len(st.requests)),
		items:         make(map[uint]request.RequestItem, len(st.items)),
		registrations: make(map[regKey]int, len(st.registrations)),
		activities:    append([]activity.Entry(nil), st.activities...),
		assetSeq:      make(map[int]int, len(st.assetSeq)),
		docSeq:        make(map[string]int, len(st.docSeq)),
		nextRequestID: st.nextRequestID,
		nextItemID:    st.nextItemID,
		nextMoveID:    st.nextMoveID,
	}
	for k, v := range st.assets {
		c.assets[k] = cloneAsset(v)
	}
	for k, v := range st.requests {
		c.requests[k] = v
	}
	for k, v := range st.items {
		c.items[k] = cloneItem(v)
	}
	for k, v := range st.registrations {
		c.registrations[k] = v
	}
	for k, v := range st.assetSeq {
		c.assetSeq[k] = v
	}
	for k, v := range st.docSeq {
		c.docSeq[k] = v
	}
	return c
}

type txFlag struct{}

// Store is an in-memory backend. Transactions are serialized and roll back
// to a snapshot on error.
type Store struct {
	mu            sync.Mutex
	st            *state
	notifications []notification.Notice

	// DispatchErr, when set, is returned by Dispatch
	DispatchErr error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		st: &state{
			assets:        make(map[string]asset.Asset),
			requests:      make(map[uint]request.Request),
			items:         make(map[uint]request.RequestItem),
			registrations: make(map[regKey]int),
			assetSeq:      make(map[int]int),
			docSeq:        make(map[string]int),
		},
	}
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txFlag{}).(bool)
	return v
}

// with runs fn under the store lock unless ctx already holds it
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// RunInTransaction implements txn.Transactor
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txFlag{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func cloneAsset(a asset.Asset) asset.Asset {
	if a.Quantity != nil {
		q := *a.Quantity
		a.Quantity = &q
	}
	if a.InitialBalance != nil {
		b := *a.InitialBalance
		a.InitialBalance = &b
	}
	if a.CurrentBalance != nil {
		b := *a.CurrentBalance
		a.CurrentBalance = &b
	}
	return a
}

func cloneItem(i request.RequestItem) request.RequestItem {
	if i.ApprovedQuantity != nil {
		q := *i.ApprovedQuantity
		i.ApprovedQuantity = &q
	}
	return i
}

// SEEDING AND INSPECTION

// SeedLot stores a lot as is
func (s *Store) SeedLot(a asset.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == "" {
		a.Status = asset.StatusInStorage
	}
	s.st.assets[a.ID] = cloneAsset(a)
}

// Lot returns a stored lot, including soft-deleted ones
func (s *Store) Lot(id string) (asset.Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.assets[id]
	return cloneAsset(a), ok
}

// Assets returns every stored lot ordered by id
func (s *Store) Assets() []asset.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]asset.Asset, 0, len(s.st.assets))
	for _, a := range s.st.assets {
		out = append(out, cloneAsset(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Movements returns every movement in insertion order
func (s *Store) Movements() []asset.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]asset.StockMovement(nil), s.st.movements...)
}

// Activities returns every recorded activity entry
func (s *Store) Activities() []activity.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.Entry(nil), s.st.activities...)
}

// Notifications returns every dispatched notice
func (s *Store) Notifications() []notification.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Notice(nil), s.notifications...)
}

// ASSET REPOSITORY

func (s *Store) stockLots(st *state, match func(a asset.Asset) bool) []asset.Asset {
	var lots []asset.Asset
	for _, a := range st.assets {
		if a.DeletedAt.Valid || a.Status != asset.StatusInStorage || !match(a) {
			continue
		}
		lots = append(lots, cloneAsset(a))
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].ID < lots[j].ID })
	return lots
}

// FindLotsByNameBrand implements asset.Repository
func (s *Store) FindLotsByNameBrand(ctx context.Context, name, brand string, forUpdate bool) ([]asset.Asset, error) {
	var lots []asset.Asset
	err := s.with(ctx, func(st *state) error {
		lots = s.stockLots(st, func(a asset.Asset) bool {
			return strings.EqualFold(a.Name, strings.TrimSpace(name)) && strings.EqualFold(a.Brand, strings.TrimSpace(brand))
		})
		return nil
	})
	return lots, err
}

// ListStockLots implements asset.Repository
func (s *Store) ListStockLots(ctx context.Context, filter asset.StockFilter) ([]asset.Asset, error) {
	var lots []asset.Asset
	err := s.with(ctx, func(st *state) error {
		lots = s.stockLots(st, func(a asset.Asset) bool {
			name, brand := strings.TrimSpace(filter.Name), strings.TrimSpace(filter.Brand)
			return (name == "" || strings.EqualFold(a.Name, name)) &&
				(brand == "" || strings.EqualFold(a.Brand, brand))
		})
		return nil
	})
	return lots, err
}

// FindLot implements asset.Repository
func (s *Store) FindLot(ctx context.Context, id string) (*asset.Asset, error) {
	var lot *asset.Asset
	err := s.with(ctx, func(st *state) error {
		a, ok := st.assets[id]
		if !ok || a.DeletedAt.Valid {
			return apperror.NotFound("lot %s not found", id)
		}
		c := cloneAsset(a)
		lot = &c
		return nil
	})
	return lot, err
}

// UpdateLotBalance implements asset.Repository
func (s *Store) UpdateLotBalance(ctx context.Context, id string, previous, next decimal.Decimal) error {
	return s.with(ctx, func(st *state) error {
		a, ok := st.assets[id]
		if !ok || a.DeletedAt.Valid {
			return apperror.NotFound("lot %s not found", id)
		}
		if a.CurrentBalance == nil || !a.CurrentBalance.Equal(previous) {
			return apperror.ConcurrencyConflict(nil, "balance of lot %s changed concurrently", id)
		}
		n := next
		a.CurrentBalance = &n
		a.UpdatedAt = time.Now()
		st.assets[id] = a
		return nil
	})
}

// InsertMovement implements asset.Repository
func (s *Store) InsertMovement(ctx context.Context, m *asset.StockMovement) error {
	return s.with(ctx, func(st *state) error {
		st.nextMoveID++
		m.ID = st.nextMoveID
		m.CreatedAt = time.Now()
		st.movements = append(st.movements, *m)
		return nil
	})
}

// ListMovements implements asset.Repository
func (s *Store) ListMovements(ctx context.Context, assetID string) ([]asset.StockMovement, error) {
	var out []asset.StockMovement
	err := s.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.AssetID == assetID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// NextAssetNumber implements asset.Repository. The first call for a year
// continues from the highest existing id of that year.
func (s *Store) NextAssetNumber(ctx context.Context, year int) (int, error) {
	var next int
	err := s.with(ctx, func(st *state) error {
		if _, ok := st.assetSeq[year]; !ok {
			prefix := asset.AssetIDPrefix(year)
			max := 0
			for id := range st.assets {
				if !strings.HasPrefix(id, prefix) {
					continue
				}
				if n, err := strconv.Atoi(strings.TrimPrefix(id, prefix)); err == nil && n > max {
					max = n
				}
			}
			st.assetSeq[year] = max
		}
		st.assetSeq[year]++
		next = st.assetSeq[year]
		return nil
	})
	return next, err
}

// CreateAssets implements asset.Repository
func (s *Store) CreateAssets(ctx context.Context, assets []asset.Asset) error {
	return s.with(ctx, func(st *state) error {
		for _, a := range assets {
			if _, exists := st.assets[a.ID]; exists {
				return apperror.ConcurrencyConflict(nil, "asset id %s already exists", a.ID)
			}
		}
		now := time.Now()
		for i := range assets {
			assets[i].CreatedAt = now
			assets[i].UpdatedAt = now
			st.assets[assets[i].ID] = cloneAsset(assets[i])
		}
		return nil
	})
}

// REQUEST REPOSITORY

// CreateRequestWithItems implements request.Repository
func (s *Store) CreateRequestWithItems(ctx context.Context, r *request.Request) error {
	return s.with(ctx, func(st *state) error {
		for _, existing := range st.requests {
			if existing.DocNumber == r.DocNumber {
				return apperror.ConcurrencyConflict(nil, "document number %s already exists", r.DocNumber)
			}
		}
		now := time.Now()
		st.nextRequestID++
		r.ID = st.nextRequestID
		r.CreatedAt = now
		r.UpdatedAt = now
		for i := range r.Items {
			st.nextItemID++
			r.Items[i].ID = st.nextItemID
			r.Items[i].RequestID = r.ID
			r.Items[i].CreatedAt = now
			r.Items[i].UpdatedAt = now
			st.items[r.Items[i].ID] = cloneItem(r.Items[i])
		}
		header := *r
		header.Items = nil
		header.Registrations = nil
		header.PartiallyRegisteredItems = nil
		st.requests[r.ID] = header
		return nil
	})
}

// FindRequestByID implements request.Repository
func (s *Store) FindRequestByID(ctx context.Context, id uint, forUpdate bool) (*request.Request, error) {
	var out *request.Request
	err := s.with(ctx, func(st *state) error {
		header, ok := st.requests[id]
		if !ok || header.DeletedAt.Valid {
			return apperror.NotFound("request %d not found", id)
		}
		r := header
		for _, item := range st.items {
			if item.RequestID == id {
				r.Items = append(r.Items, cloneItem(item))
			}
		}
		sort.Slice(r.Items, func(i, j int) bool { return r.Items[i].ID < r.Items[j].ID })
		for key, count := range st.registrations {
			if key.requestID == id {
				r.Registrations = append(r.Registrations, request.ItemRegistration{
					RequestID:       id,
					RequestItemID:   key.itemID,
					RegisteredCount: count,
				})
			}
		}
		r.SyncRegistrationCounts()
		out = &r
		return nil
	})
	return out, err
}

// UpdateRequestItem implements request.Repository
func (s *Store) UpdateRequestItem(ctx context.Context, item *request.RequestItem) error {
	return s.with(ctx, func(st *state) error {
		existing, ok := st.items[item.ID]
		if !ok {
			return apperror.NotFound("request item %d not found", item.ID)
		}
		existing.Status = item.Status
		existing.ApprovedQuantity = item.ApprovedQuantity
		existing.Reason = item.Reason
		existing.UpdatedAt = time.Now()
		st.items[item.ID] = cloneItem(existing)
		return nil
	})
}

// UpdateRequestStatus implements request.Repository
func (s *Store) UpdateRequestStatus(ctx context.Context, r *request.Request) error {
	return s.with(ctx, func(st *state) error {
		if _, ok := st.requests[r.ID]; !ok {
			return apperror.NotFound("request %d not found", r.ID)
		}
		header := *r
		header.Items = nil
		header.Registrations = nil
		header.PartiallyRegisteredItems = nil
		header.UpdatedAt = time.Now()
		st.requests[r.ID] = header
		return nil
	})
}

// IncrementRegistration implements request.Repository
func (s *Store) IncrementRegistration(ctx context.Context, requestID, itemID uint, delta int) error {
	return s.with(ctx, func(st *state) error {
		st.registrations[regKey{requestID: requestID, itemID: itemID}] += delta
		return nil
	})
}

// NextDocumentNumber implements request.Repository
func (s *Store) NextDocumentNumber(ctx context.Context, day time.Time) (int, error) {
	var next int
	err := s.with(ctx, func(st *state) error {
		key := day.Format("20060102")
		st.docSeq[key]++
		next = st.docSeq[key]
		return nil
	})
	return next, err
}

// DeleteRequest implements request.Repository
func (s *Store) DeleteRequest(ctx context.Context, id uint) error {
	return s.with(ctx, func(st *state) error {
		header, ok := st.requests[id]
		if !ok || header.DeletedAt.Valid {
			return apperror.NotFound("request %d not found", id)
		}
		header.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		st.requests[id] = header
		for itemID, item := range st.items {
			if item.RequestID == id {
				delete(st.items, itemID)
			}
		}
		for key := range st.registrations {
			if key.requestID == id {
				delete(st.registrations, key)
			}
		}
		return nil
	})
}

// SIDE EFFECTS

// Record implements activity.Recorder
func (s *Store) Record(ctx context.Context, entry activity.Entry) error {
	return s.with(ctx, func(st *state) error {
		st.activities = append(st.activities, entry)
		return nil
	})
}

// ListForEntity mirrors activity.Service, newest first
func (s *Store) ListForEntity(ctx context.Context, entityType, entityID string) ([]activity.Log, error) {
	var out []activity.Log
	err := s.with(ctx, func(st *state) error {
		for i := len(st.activities) - 1; i >= 0; i-- {
			e := st.activities[i]
			if e.EntityType != entityType || e.EntityID != entityID {
				continue
			}
			changes, err := json.Marshal(e.Changes)
			if err != nil {
				return err
			}
			out = append(out, activity.Log{
				ID:            uint(i + 1),
				EntityType:    e.EntityType,
				EntityID:      e.EntityID,
				Action:        e.Action,
				Actor:         e.Actor,
				Changes:       changes,
				CorrelationID: activity.CorrelationID(ctx),
			})
		}
		return nil
	})
	return out, err
}

// Dispatch implements notification.Dispatcher
func (s *Store) Dispatch(ctx context.Context, notice notification.Notice) error {
	if s.DispatchErr != nil {
		return s.DispatchErr
	}
	if notice.Recipient == "" {
		return errors.New("notification recipient is required")
	}
	return s.with(ctx, func(st *state) error {
		s.notifications = append(s.notifications, notice)
		return nil
	})
}

// ListUnread mirrors notification.Service over dispatched notices, newest first
func (s *Store) ListUnread(ctx context.Context, recipient string) ([]notification.Notification, error) {
	var out []notification.Notification
	err := s.with(ctx, func(*state) error {
		for i := len(s.notifications) - 1; i >= 0; i-- {
			n := s.notifications[i]
			if n.Recipient != recipient {
				continue
			}
			out = append(out, notification.Notification{
				ID:            uint(i + 1),
				Recipient:     n.Recipient,
				Type:          n.Type,
				ReferenceType: n.ReferenceType,
				ReferenceID:   n.ReferenceID,
				Message:       n.Message,
			})
		}
		return nil
	})
	return out, err
}

// LOT BUILDERS

// MeasuredLot builds an IN_STORAGE lot with a decimal balance
func MeasuredLot(id, name, brand string, balance float64, unit string) asset.Asset {
	b := decimal.NewFromFloat(balance)
	initial := b
	return asset.Asset{
		ID:             id,
		Name:           name,
		Brand:          brand,
		InitialBalance: &initial,
		CurrentBalance: &b,
		Unit:           unit,
		Status:         asset.StatusInStorage,
	}
}

// CountedLot builds an IN_STORAGE lot with a discrete quantity
func CountedLot(id, name, brand string, quantity int) asset.Asset {
	q := quantity
	return asset.Asset{
		ID:       id,
		Name:     name,
		Brand:    brand,
		Quantity: &q,
		Unit:     "pcs",
		Status:   asset.StatusInStorage,
	}
}

// UnitLot builds an individual IN_STORAGE item
func UnitLot(id, name, brand string) asset.Asset {
	return asset.Asset{
		ID:           id,
		Name:         name,
		Brand:        brand,
		SerialNumber: fmt.Sprintf("SN-%s", id),
		Status:       asset.StatusInStorage,
	}
}
