package asset_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/logger"
	"github.com/your-org/asset-inventory/internal/testutil"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*asset.Service, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	return asset.NewService(store, store, store, logger.Discard()), store
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %d, got %s", want, got.String())
}

func balanceOf(t *testing.T, store *testutil.Store, id string) decimal.Decimal {
	t.Helper()
	lot, ok := store.Lot(id)
	require.True(t, ok, "lot %s missing", id)
	require.NotNil(t, lot.CurrentBalance)
	return *lot.CurrentBalance
}

func TestLotQuantityVariants(t *testing.T) {
	measured := testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 12.5, "m")
	counted := testutil.CountedLot("AST-2026-0002", "Patch Cord", "Belden", 40)
	unit := testutil.UnitLot("AST-2026-0003", "ONT", "Huawei")

	assert.Equal(t, asset.KindMeasured, measured.LotQuantity().Kind)
	assert.True(t, measured.AvailableAmount().Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, asset.KindCounted, counted.LotQuantity().Kind)
	assertDecimal(t, 40, counted.AvailableAmount())
	assert.Equal(t, asset.KindUnit, unit.LotQuantity().Kind)
	assertDecimal(t, 1, unit.AvailableAmount())

	// A balance wins over a count
	q := 3
	measured.Quantity = &q
	assert.Equal(t, asset.KindMeasured, measured.LotQuantity().Kind)
}

func TestEvaluateFragmentedStock(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.CountedLot("AST-2026-0001", "Splitter 1:8", "ZTE", 50))
	store.SeedLot(testutil.CountedLot("AST-2026-0002", "Splitter 1:8", "ZTE", 30))

	got, err := svc.Evaluate(context.Background(), "Splitter 1:8", "ZTE", dec(40))
	require.NoError(t, err)

	assert.True(t, got.IsSufficient)
	assert.True(t, got.IsFragmented)
	assertDecimal(t, 80, got.Available)
	assertDecimal(t, 0, got.Deficit)
	assert.ElementsMatch(t, []string{"AST-2026-0001", "AST-2026-0002"}, got.LotIDs)
}

func TestEvaluateDeficit(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.CountedLot("AST-2026-0001", "Splitter 1:8", "ZTE", 5))

	got, err := svc.Evaluate(context.Background(), "splitter 1:8", "zte", dec(8))
	require.NoError(t, err)

	assert.False(t, got.IsSufficient)
	assert.False(t, got.IsFragmented)
	assertDecimal(t, 5, got.Available)
	assertDecimal(t, 3, got.Deficit)
}

func TestEvaluateIgnoresLotsOutsideStorage(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 100, "m"))
	store.SeedLot(testutil.UnitLot("AST-2026-0002", "Fiber Cable", "Fujikura"))

	inUse := testutil.CountedLot("AST-2026-0003", "Fiber Cable", "Fujikura", 10)
	inUse.Status = asset.StatusInUse
	store.SeedLot(inUse)

	deleted := testutil.MeasuredLot("AST-2026-0004", "Fiber Cable", "Fujikura", 50, "m")
	deleted.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	store.SeedLot(deleted)

	store.SeedLot(testutil.MeasuredLot("AST-2026-0005", "Fiber Cable", "Corning", 500, "m"))

	got, err := svc.Evaluate(context.Background(), "Fiber Cable", "Fujikura", dec(1))
	require.NoError(t, err)
	assertDecimal(t, 101, got.Available)
	assert.Len(t, got.LotIDs, 2)

	total, err := svc.AvailableStock(context.Background(), "fiber cable", "FUJIKURA")
	require.NoError(t, err)
	assert.True(t, total.Equal(got.Available))
}

func TestEvaluateRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newService(t)

	for _, qty := range []int64{0, -5} {
		_, err := svc.Evaluate(context.Background(), "ONT", "Huawei", dec(qty))
		assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
	}
}

func TestBlankBrandIsRejected(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"))

	_, err := svc.Evaluate(context.Background(), "Fiber Cable", " ", dec(5))
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "", Quantity: dec(5)},
	}, asset.ConsumeContext{})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
	assert.Empty(t, store.Movements())
}

func TestConsumeLargestLotFirst(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0002", "Fiber Cable", "Fujikura", 100, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0003", "Fiber Cable", "Fujikura", 20, "m"))

	res, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(90), Unit: "m"},
	}, asset.ConsumeContext{ReferenceType: asset.ReferenceInstallation, ReferenceID: "INST-1", PerformedBy: "tech"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.Len(t, res.ConsumedPerLot, 1)
	assert.Equal(t, "AST-2026-0002", res.ConsumedPerLot[0].AssetID)
	assertDecimal(t, 90, res.ConsumedPerLot[0].Taken)

	assertDecimal(t, 30, balanceOf(t, store, "AST-2026-0001"))
	assertDecimal(t, 10, balanceOf(t, store, "AST-2026-0002"))
	assertDecimal(t, 20, balanceOf(t, store, "AST-2026-0003"))

	movements := store.Movements()
	require.Len(t, movements, 1)
	m := movements[0]
	assert.Equal(t, "AST-2026-0002", m.AssetID)
	assert.Equal(t, asset.MovementConsumed, m.MovementType)
	assertDecimal(t, -90, m.Quantity)
	assertDecimal(t, 100, *m.PreviousBalance)
	assertDecimal(t, 10, *m.NewBalance)
	assert.Equal(t, "INST-1", m.ReferenceID)
	assert.Equal(t, "tech", m.PerformedBy)
}

func TestConsumeSpillsIntoNextLargestLot(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0002", "Fiber Cable", "Fujikura", 100, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0003", "Fiber Cable", "Fujikura", 20, "m"))

	res, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(120)},
	}, asset.ConsumeContext{})
	require.NoError(t, err)

	require.Len(t, res.ConsumedPerLot, 2)
	assert.Equal(t, "AST-2026-0002", res.ConsumedPerLot[0].AssetID)
	assert.Equal(t, "AST-2026-0001", res.ConsumedPerLot[1].AssetID)
	assertDecimal(t, 0, balanceOf(t, store, "AST-2026-0002"))
	assertDecimal(t, 10, balanceOf(t, store, "AST-2026-0001"))
	assertDecimal(t, 20, balanceOf(t, store, "AST-2026-0003"))
	assert.NotEmpty(t, res.ReferenceID)
	assert.Equal(t, "m", res.ConsumedPerLot[0].Unit)
}

func TestConsumeTieBreaksOnLotID(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0009", "Drop Cable", "Furukawa", 50, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0004", "Drop Cable", "Furukawa", 50, "m"))

	res, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Drop Cable", Brand: "Furukawa", Quantity: dec(10)},
	}, asset.ConsumeContext{})
	require.NoError(t, err)

	require.Len(t, res.ConsumedPerLot, 1)
	assert.Equal(t, "AST-2026-0004", res.ConsumedPerLot[0].AssetID)
}

func TestConsumeInsufficientStockRollsBack(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0002", "Fiber Cable", "Fujikura", 20, "m"))

	_, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(70)},
	}, asset.ConsumeContext{})
	require.Error(t, err)

	var insufficient *apperror.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assertDecimal(t, 20, insufficient.Shortfall)
	assert.Equal(t, "Fiber Cable", insufficient.ItemName)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	assertDecimal(t, 30, balanceOf(t, store, "AST-2026-0001"))
	assertDecimal(t, 20, balanceOf(t, store, "AST-2026-0002"))
	assert.Empty(t, store.Movements())
	assert.Empty(t, store.Activities())
}

func TestConsumeBatchIsAllOrNothing(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 100, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0002", "Drop Cable", "Furukawa", 5, "m"))

	_, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(40)},
		{Name: "Drop Cable", Brand: "Furukawa", Quantity: dec(6)},
	}, asset.ConsumeContext{})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	assertDecimal(t, 100, balanceOf(t, store, "AST-2026-0001"))
	assertDecimal(t, 5, balanceOf(t, store, "AST-2026-0002"))
	assert.Empty(t, store.Movements())
}

func TestConsumeSameItemTwiceInOneBatch(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 50, "m"))

	_, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(30)},
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(30)},
	}, asset.ConsumeContext{})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assertDecimal(t, 50, balanceOf(t, store, "AST-2026-0001"))
}

// Counted and unit lots count as available but are never drawn down by
// Consume. This locks in the legacy behaviour.
func TestConsumeSkipsCountedLots(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.CountedLot("AST-2026-0001", "Patch Cord", "Belden", 50))

	availability, err := svc.Evaluate(context.Background(), "Patch Cord", "Belden", dec(10))
	require.NoError(t, err)
	assert.True(t, availability.IsSufficient)

	_, err = svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Patch Cord", Brand: "Belden", Quantity: dec(10)},
	}, asset.ConsumeContext{})

	var insufficient *apperror.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assertDecimal(t, 0, insufficient.Available)
	assertDecimal(t, 10, insufficient.Shortfall)

	lot, _ := store.Lot("AST-2026-0001")
	assert.Equal(t, 50, *lot.Quantity)
}

func TestConsumeValidation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Consume(context.Background(), nil, asset.ConsumeContext{})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(0)},
	}, asset.ConsumeContext{})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestConsumeRecordsActivity(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 50, "m"))

	res, err := svc.Consume(context.Background(), []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(5)},
	}, asset.ConsumeContext{ReferenceType: asset.ReferenceMaintenance, PerformedBy: "tech"})
	require.NoError(t, err)

	entries := store.Activities()
	require.Len(t, entries, 1)
	assert.Equal(t, activity.EntityStockBatch, entries[0].EntityType)
	assert.Equal(t, res.ReferenceID, entries[0].EntityID)
	assert.Equal(t, activity.ActionConsume, entries[0].Action)
	assert.Equal(t, asset.ReferenceMaintenance, entries[0].Changes["reference_type"])
}

func TestSerializedConsumersNeverOverdraw(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 10, "m"))

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Consume(context.Background(), []asset.ConsumeItem{
				{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(8)},
			}, asset.ConsumeContext{ReferenceID: fmt.Sprintf("job-%d", i)})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := apperror.KindOf(err)
		assert.Contains(t, []apperror.Kind{apperror.KindInsufficientStock, apperror.KindConcurrencyConflict}, kind)
	}
	assert.Equal(t, 1, succeeded)
	assertDecimal(t, 2, balanceOf(t, store, "AST-2026-0001"))
	assert.Len(t, store.Movements(), 1)
}

func TestReceiveLotsContinuesYearSequence(t *testing.T) {
	svc, store := newService(t)
	year := time.Now().Year()
	store.SeedLot(testutil.UnitLot(asset.FormatAssetID(year, 7), "ONT", "Huawei"))
	store.SeedLot(testutil.UnitLot(asset.FormatAssetID(year-1, 40), "ONT", "Huawei"))

	balance := dec(250)
	created, err := svc.ReceiveLots(context.Background(), []asset.NewLot{
		{Name: "ONT", Brand: "Huawei", SerialNumber: "HW-1"},
		{Name: "Fiber Cable", Brand: "Fujikura", InitialBalance: &balance, Unit: "m"},
	}, asset.ReceiveContext{ReferenceID: "REQ-1", RegisteredBy: "warehouse"})
	require.NoError(t, err)

	require.Len(t, created, 2)
	assert.Equal(t, asset.FormatAssetID(year, 8), created[0].ID)
	assert.Equal(t, asset.FormatAssetID(year, 9), created[1].ID)
	assert.Equal(t, asset.StatusInStorage, created[0].Status)

	movements := store.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, asset.MovementReceived, movements[0].MovementType)
	assert.Equal(t, created[1].ID, movements[0].AssetID)
	assertDecimal(t, 250, movements[0].Quantity)
}

func TestReceiveLotsValidation(t *testing.T) {
	svc, store := newService(t)
	q := 0
	_, err := svc.ReceiveLots(context.Background(), []asset.NewLot{
		{Name: "Patch Cord", Brand: "Belden", Quantity: &q},
	}, asset.ReceiveContext{})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
	assert.Empty(t, store.Assets())
}

func TestSummaryGroupsByItemClass(t *testing.T) {
	svc, store := newService(t)
	store.SeedLot(testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"))
	store.SeedLot(testutil.MeasuredLot("AST-2026-0002", "fiber cable", "FUJIKURA", 20, "m"))
	store.SeedLot(testutil.CountedLot("AST-2026-0003", "Patch Cord", "Belden", 12))
	store.SeedLot(testutil.UnitLot("AST-2026-0004", "Patch Cord", "Belden"))

	summaries, err := svc.Summary(context.Background(), asset.StockFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	cable := summaries[0]
	assert.Equal(t, 2, cable.Lots)
	assert.Equal(t, 2, cable.MeasuredLots)
	assertDecimal(t, 50, cable.Available)
	assert.Equal(t, []string{"m"}, cable.Units)

	cords := summaries[1]
	assert.Equal(t, 1, cords.CountedLots)
	assert.Equal(t, 1, cords.UnitLots)
	assertDecimal(t, 13, cords.Available)

	filtered, err := svc.Summary(context.Background(), asset.StockFilter{Name: "patch cord"})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestReconcileAfterConsumption(t *testing.T) {
	svc, store := newService(t)
	balance := dec(100)
	created, err := svc.ReceiveLots(context.Background(), []asset.NewLot{
		{Name: "Fiber Cable", Brand: "Fujikura", InitialBalance: &balance, Unit: "m"},
	}, asset.ReceiveContext{})
	require.NoError(t, err)
	id := created[0].ID

	for _, qty := range []int64{15, 25} {
		_, err := svc.Consume(context.Background(), []asset.ConsumeItem{
			{Name: "Fiber Cable", Brand: "Fujikura", Quantity: dec(qty)},
		}, asset.ConsumeContext{})
		require.NoError(t, err)
	}

	rec, err := svc.Reconcile(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, rec.IsConsistent)
	assertDecimal(t, -40, rec.MovementTotal)
	assertDecimal(t, 60, rec.CurrentBalance)
	assert.Equal(t, 3, rec.Movements)

	movements, err := svc.GetMovements(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, movements, 3)

	store.SeedLot(testutil.CountedLot("AST-2026-0500", "Patch Cord", "Belden", 3))
	_, err = svc.Reconcile(context.Background(), "AST-2026-0500")
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = svc.Reconcile(context.Background(), "AST-1999-0001")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
