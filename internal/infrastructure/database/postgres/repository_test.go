package postgres_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/asset-inventory/internal/config"
	"github.com/your-org/asset-inventory/internal/domain/activity"
	"github.com/your-org/asset-inventory/internal/domain/asset"
	"github.com/your-org/asset-inventory/internal/domain/notification"
	"github.com/your-org/asset-inventory/internal/domain/request"
	"github.com/your-org/asset-inventory/internal/infrastructure/database/postgres"
	"github.com/your-org/asset-inventory/internal/pkg/apperror"
	"github.com/your-org/asset-inventory/internal/pkg/logger"
	"github.com/your-org/asset-inventory/internal/testutil"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, postgres.NewMigration(db).RunAutoMigrations())
	return db
}

func seed(t *testing.T, db *gorm.DB, lots ...asset.Asset) {
	t.Helper()
	for i := range lots {
		require.NoError(t, db.Create(&lots[i]).Error)
	}
}

func TestFindLotsByNameBrand(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAssetRepository(db)

	inUse := testutil.CountedLot("AST-2026-0003", "Splitter 1:8", "ZTE", 5)
	inUse.Status = asset.StatusInUse
	seed(t, db,
		testutil.CountedLot("AST-2026-0002", "Splitter 1:8", "ZTE", 30),
		testutil.CountedLot("AST-2026-0001", "splitter 1:8", "zte", 50),
		inUse,
		testutil.CountedLot("AST-2026-0004", "Splitter 1:8", "ZTE", 7),
		testutil.CountedLot("AST-2026-0005", "Splitter 1:16", "ZTE", 9),
	)
	require.NoError(t, db.Delete(&asset.Asset{}, "id = ?", "AST-2026-0004").Error)

	lots, err := repo.FindLotsByNameBrand(context.Background(), " Splitter 1:8 ", "ZTE", true)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, "AST-2026-0001", lots[0].ID)
	assert.Equal(t, "AST-2026-0002", lots[1].ID)

	all, err := repo.ListStockLots(context.Background(), asset.StockFilter{Brand: "zte"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = repo.FindLot(context.Background(), "AST-2026-0004")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestFindLotsByNameBrandNeverWidensOnBlankBrand(t *testing.T) {
	s := newServices(t)
	seed(t, s.db,
		testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"),
		testutil.MeasuredLot("AST-2026-0002", "Fiber Cable", "Furukawa", 100, "m"),
	)
	repo := postgres.NewAssetRepository(s.db)
	ctx := context.Background()

	for _, brand := range []string{"", "  "} {
		lots, err := repo.FindLotsByNameBrand(ctx, "Fiber Cable", brand, true)
		require.NoError(t, err)
		assert.Empty(t, lots, "brand %q", brand)
	}

	lots, err := repo.FindLotsByNameBrand(ctx, "fiber cable", " FURUKAWA ", false)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "AST-2026-0002", lots[0].ID)

	listed, err := repo.ListStockLots(ctx, asset.StockFilter{Name: "Fiber Cable"})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = s.stock.Evaluate(ctx, "Fiber Cable", "", decimal.NewFromInt(50))
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = s.stock.Consume(ctx, []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: " ", Quantity: decimal.NewFromInt(120)},
	}, asset.ConsumeContext{})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	for id, want := range map[string]int64{"AST-2026-0001": 30, "AST-2026-0002": 100} {
		lot, err := s.stock.GetLot(ctx, id)
		require.NoError(t, err)
		assert.True(t, lot.CurrentBalance.Equal(decimal.NewFromInt(want)), "%s: %s", id, lot.CurrentBalance)
	}
}

func TestUpdateLotBalanceCompareAndSet(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAssetRepository(db)
	seed(t, db, testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 100, "m"))
	ctx := context.Background()

	require.NoError(t, repo.UpdateLotBalance(ctx, "AST-2026-0001", decimal.NewFromInt(100), decimal.NewFromInt(60)))

	err := repo.UpdateLotBalance(ctx, "AST-2026-0001", decimal.NewFromInt(100), decimal.NewFromInt(20))
	assert.True(t, apperror.IsConflict(err))

	lot, err := repo.FindLot(ctx, "AST-2026-0001")
	require.NoError(t, err)
	assert.True(t, lot.CurrentBalance.Equal(decimal.NewFromInt(60)), lot.CurrentBalance.String())
}

func TestNextAssetNumberStartsFromHighestID(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAssetRepository(db)
	seed(t, db,
		testutil.UnitLot("AST-2026-9999", "ONT", "Huawei"),
		testutil.UnitLot("AST-2026-10000", "ONT", "Huawei"),
		testutil.UnitLot("AST-2025-20000", "ONT", "Huawei"),
	)
	require.NoError(t, db.Delete(&asset.Asset{}, "id = ?", "AST-2026-10000").Error)
	ctx := context.Background()

	next, err := repo.NextAssetNumber(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 10001, next)

	next, err = repo.NextAssetNumber(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 10002, next)

	next, err = repo.NextAssetNumber(ctx, 2027)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestRequestRepositoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRequestRepository(db)
	ctx := context.Background()

	req := &request.Request{
		DocNumber:        "REQ-20260101-0001",
		Status:           request.StatusPending,
		AllocationTarget: request.AllocationUsage,
		OrderType:        request.OrderUrgent,
		RequesterID:      "u-1",
		Items: []request.RequestItem{
			{ItemName: "ONT", ItemTypeBrand: "Huawei", Quantity: 3, Status: request.ItemProcurementNeeded},
			{ItemName: "SFP", ItemTypeBrand: "Huawei", Quantity: 2, Status: request.ItemProcurementNeeded},
		},
	}
	require.NoError(t, repo.CreateRequestWithItems(ctx, req))
	require.NotZero(t, req.ID)

	found, err := repo.FindRequestByID(ctx, req.ID, true)
	require.NoError(t, err)
	require.Len(t, found.Items, 2)
	assert.Empty(t, found.PartiallyRegisteredItems)

	approved := 1
	item := found.Items[0]
	item.Status = request.ItemPartial
	item.ApprovedQuantity = &approved
	item.Reason = "one for now"
	require.NoError(t, repo.UpdateRequestItem(ctx, &item))

	now := time.Now().UTC()
	found.Status = request.StatusPurchaseApproved
	found.PurchaseApprovedBy = "Budi"
	found.PurchaseApprovedAt = &now
	require.NoError(t, repo.UpdateRequestStatus(ctx, found))

	require.NoError(t, repo.IncrementRegistration(ctx, req.ID, item.ID, 1))
	require.NoError(t, repo.IncrementRegistration(ctx, req.ID, item.ID, 2))
	require.NoError(t, repo.IncrementRegistration(ctx, req.ID, found.Items[1].ID, 1))

	reloaded, err := repo.FindRequestByID(ctx, req.ID, false)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPurchaseApproved, reloaded.Status)
	assert.Equal(t, "Budi", reloaded.PurchaseApprovedBy)
	assert.Equal(t, request.ItemPartial, reloaded.Items[0].Status)
	require.NotNil(t, reloaded.Items[0].ApprovedQuantity)
	assert.Equal(t, 1, *reloaded.Items[0].ApprovedQuantity)
	assert.Equal(t, request.RegistrationCounts{item.ID: 3, found.Items[1].ID: 1}, reloaded.PartiallyRegisteredItems)

	require.NoError(t, repo.DeleteRequest(ctx, req.ID))
	_, err = repo.FindRequestByID(ctx, req.ID, false)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var items int64
	require.NoError(t, db.Model(&request.RequestItem{}).Where("request_id = ?", req.ID).Count(&items).Error)
	assert.Zero(t, items)
}

func TestNextDocumentNumberPerDay(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewRequestRepository(db)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for want := 1; want <= 3; want++ {
		got, err := repo.NextDocumentNumber(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := repo.NextDocumentNumber(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

type services struct {
	db       *gorm.DB
	stock    *asset.Service
	requests *request.Service
	activity *activity.Service
}

func newServices(t *testing.T) *services {
	t.Helper()
	db := newTestDB(t)
	tx := postgres.NewTransactor(db)
	recorder := activity.NewService(db)
	notifier := notification.NewService(db, nil, "notifications", logger.Discard())
	stock := asset.NewService(postgres.NewAssetRepository(db), tx, recorder, logger.Discard())
	cfg := &config.Config{Inventory: config.InventoryConfig{RequestNumberPrefix: "REQ", StrictTransitions: true}}
	requests := request.NewService(postgres.NewRequestRepository(db), tx, stock, recorder, notifier, cfg, logger.Discard())
	return &services{db: db, stock: stock, requests: requests, activity: recorder}
}

func TestConsumeRollsBackInDatabase(t *testing.T) {
	s := newServices(t)
	seed(t, s.db,
		testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 30, "m"),
		testutil.MeasuredLot("AST-2026-0002", "Fiber Cable", "Fujikura", 100, "m"),
		testutil.MeasuredLot("AST-2026-0003", "Drop Cable", "Furukawa", 5, "m"),
	)
	ctx := context.Background()

	_, err := s.stock.Consume(ctx, []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: decimal.NewFromInt(90)},
		{Name: "Drop Cable", Brand: "Furukawa", Quantity: decimal.NewFromInt(6)},
	}, asset.ConsumeContext{})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	var movements int64
	require.NoError(t, s.db.Model(&asset.StockMovement{}).Count(&movements).Error)
	assert.Zero(t, movements)

	lot, err := s.stock.GetLot(ctx, "AST-2026-0002")
	require.NoError(t, err)
	assert.True(t, lot.CurrentBalance.Equal(decimal.NewFromInt(100)))

	res, err := s.stock.Consume(ctx, []asset.ConsumeItem{
		{Name: "Fiber Cable", Brand: "Fujikura", Quantity: decimal.NewFromInt(90)},
	}, asset.ConsumeContext{ReferenceID: "INST-7", PerformedBy: "tech"})
	require.NoError(t, err)
	require.Len(t, res.ConsumedPerLot, 1)
	assert.Equal(t, "AST-2026-0002", res.ConsumedPerLot[0].AssetID)

	logs, err := s.activity.ListForEntity(ctx, activity.EntityStockBatch, "INST-7")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, activity.ActionConsume, logs[0].Action)
}

func TestRegistrationEndToEnd(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	approver := request.Actor{ID: "u-2", Name: "Budi"}

	r, err := s.requests.Create(ctx, &request.CreateRequestInput{
		AllocationTarget: request.AllocationInventory,
		OrderType:        request.OrderProjectBased,
		Items: []request.CreateItemInput{
			{ItemName: "OLT Card", ItemTypeBrand: "Huawei", Quantity: 3},
			{ItemName: "SFP Module", ItemTypeBrand: "Huawei", Quantity: 2},
		},
	}, request.Actor{ID: "u-1", Name: "Rina"})
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, r.Status)
	assert.True(t, strings.HasPrefix(r.DocNumber, "REQ-"))

	_, err = s.requests.Approve(ctx, r.ID, &request.ApproveInput{Type: request.ApprovalPurchase}, approver)
	require.NoError(t, err)
	_, err = s.requests.MarkArrived(ctx, r.ID, approver)
	require.NoError(t, err)

	lots := func(itemID uint, n int) []asset.NewLot {
		out := make([]asset.NewLot, n)
		for i := range out {
			id := itemID
			out[i] = asset.NewLot{RequestItemID: &id, Name: "OLT Card", Brand: "Huawei"}
		}
		return out
	}

	res, err := s.requests.RegisterAssets(ctx, r.ID, lots(r.Items[0].ID, 3), approver)
	require.NoError(t, err)
	assert.False(t, res.IsFullyRegistered)

	res, err = s.requests.RegisterAssets(ctx, r.ID, lots(r.Items[1].ID, 2), approver)
	require.NoError(t, err)
	assert.True(t, res.IsFullyRegistered)

	stored, err := s.requests.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAwaitingHandover, stored.Status)
	assert.True(t, stored.IsRegistered)

	var created []asset.Asset
	require.NoError(t, s.db.Where("request_id = ?", r.ID).Order("id").Find(&created).Error)
	require.Len(t, created, 5)
	year := time.Now().Year()
	assert.Equal(t, asset.FormatAssetID(year, 1), created[0].ID)
	assert.Equal(t, asset.FormatAssetID(year, 5), created[4].ID)

	var notices []notification.Notification
	require.NoError(t, s.db.Where("recipient = ?", "u-1").Find(&notices).Error)
	assert.NotEmpty(t, notices)
}

func TestSeedInitialDataRunsOnce(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, postgres.Wrap(db).Health())

	migration := postgres.NewMigration(db)
	require.NoError(t, migration.SeedInitialData())
	require.NoError(t, migration.SeedInitialData())

	var lots, movements int64
	require.NoError(t, db.Model(&asset.Asset{}).Count(&lots).Error)
	require.NoError(t, db.Model(&asset.StockMovement{}).Count(&movements).Error)
	assert.Equal(t, int64(7), lots)
	assert.Equal(t, int64(3), movements)
}

// staleLots serves lots read before a competing consumption committed,
// as a second transaction would see them without row locks.
type staleLots struct {
	*postgres.AssetRepository
	snapshot []asset.Asset
}

func (r *staleLots) FindLotsByNameBrand(ctx context.Context, name, brand string, forUpdate bool) ([]asset.Asset, error) {
	return r.snapshot, nil
}

func TestConsumeRacingOnSameLotSpendsOnce(t *testing.T) {
	s := newServices(t)
	seed(t, s.db, testutil.MeasuredLot("AST-2026-0001", "Fiber Cable", "Fujikura", 10, "m"))
	ctx := context.Background()

	repo := postgres.NewAssetRepository(s.db)
	snapshot, err := repo.FindLotsByNameBrand(ctx, "Fiber Cable", "Fujikura", false)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	items := []asset.ConsumeItem{{Name: "Fiber Cable", Brand: "Fujikura", Quantity: decimal.NewFromInt(8)}}

	_, err = s.stock.Consume(ctx, items, asset.ConsumeContext{ReferenceID: "job-1"})
	require.NoError(t, err)

	late := asset.NewService(&staleLots{AssetRepository: repo, snapshot: snapshot},
		postgres.NewTransactor(s.db), s.activity, logger.Discard())
	_, err = late.Consume(ctx, items, asset.ConsumeContext{ReferenceID: "job-2"})
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err), "got %v", err)

	lot, err := s.stock.GetLot(ctx, "AST-2026-0001")
	require.NoError(t, err)
	assert.True(t, lot.CurrentBalance.Equal(decimal.NewFromInt(2)), lot.CurrentBalance.String())

	var movements []asset.StockMovement
	require.NoError(t, s.db.Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, "job-1", movements[0].ReferenceID)

	var batches int64
	require.NoError(t, s.db.Model(&activity.Log{}).Where("entity_id = ?", "job-2").Count(&batches).Error)
	assert.Zero(t, batches)
}
