package engine

import (
	"context"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory BatchStore for semantic tests.
type fakeStore struct {
	stock      map[string]decimal.Decimal
	movements  []DeltaRequest
	markers    map[string]bool
	unresolved map[string]int
	failCodes  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stock:      make(map[string]decimal.Decimal),
		markers:    make(map[string]bool),
		unresolved: make(map[string]int),
		failCodes:  make(map[string]error),
	}
}

func (f *fakeStore) CurrentStock(_ context.Context, _ string, commonCode string) (decimal.Decimal, error) {
	return f.stock[commonCode], nil
}

func (f *fakeStore) ApplyDelta(_ context.Context, _ string, req DeltaRequest) (*AppliedDelta, error) {
	if err := f.failCodes[req.CommonCode]; err != nil {
		return nil, err
	}
	before := f.stock[req.CommonCode]
	after, floored := FloorAtZero(before, req.Delta)
	f.stock[req.CommonCode] = after
	f.movements = append(f.movements, req)
	return &AppliedDelta{
		CommonCode:  req.CommonCode,
		Delta:       req.Delta,
		BeforeStock: before,
		AfterStock:  after,
		Floored:     floored,
	}, nil
}

func (f *fakeStore) ProcessedOrders(_ context.Context, _ string, orderRefs []string) (map[string]bool, error) {
	processed := make(map[string]bool)
	for _, ref := range orderRefs {
		if f.markers[ref] {
			processed[ref] = true
		}
	}
	return processed, nil
}

func (f *fakeStore) MarkProcessed(_ context.Context, _ string, _ string, orderRef string, _ uint) error {
	f.markers[orderRef] = true
	return nil
}

func (f *fakeStore) RecordUnresolved(_ context.Context, _ string, _ string, identifier string, _ models.OrderLineItem) error {
	f.unresolved[identifier]++
	return nil
}

func saleItem(orderRef, lineId string, qty int64) models.OrderLineItem {
	return models.OrderLineItem{
		BusinessId:  "biz1",
		Marketplace: "shopmaster",
		OrderRef:    orderRef,
		LineId:      lineId,
		Quantity:    decimal.NewFromInt(qty),
		Direction:   models.LineDirectionSale,
	}
}

func batchOpts() BatchOptions {
	return BatchOptions{BusinessId: "biz1", Marketplace: "shopmaster", CorrelationId: "corr-1"}
}

func TestProcessBatchChoiceResolutionDeducts(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM020"] = decimal.NewFromInt(10)

	item := saleItem("ORD-1", "L1", 1)
	item.RawChoiceText = "Choice: R05"

	result, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{item}, batchOpts())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.ResolvedCount != 1 || result.UnresolvedCount != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if !store.stock["CM020"].Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected CM020 stock 9, got %s", store.stock["CM020"])
	}
	if !store.markers["ORD-1"] {
		t.Fatal("expected ORD-1 marked processed")
	}
}

func TestProcessBatchBundleExpansion(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM001"] = decimal.NewFromInt(10)
	store.stock["CM003"] = decimal.NewFromInt(10)

	item := saleItem("ORD-2", "L1", 3)
	item.PlatformProductCode = "PLAT-PC001"

	result, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{item}, batchOpts())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("expected 2 applied deltas, got %d", len(result.Applied))
	}
	if !store.stock["CM001"].Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected CM001 stock 7, got %s", store.stock["CM001"])
	}
	if !store.stock["CM003"].Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected CM003 stock 4, got %s", store.stock["CM003"])
	}
}

func TestProcessBatchUnresolvedRoutingNoMutation(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM020"] = decimal.NewFromInt(5)

	item := saleItem("ORD-3", "L1", 2)
	item.RawSku = "UNKNOWN-SKU"

	result, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{item}, batchOpts())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.UnresolvedCount != 1 {
		t.Fatalf("expected 1 unresolved, got %d", result.UnresolvedCount)
	}
	if store.unresolved["UNKNOWN-SKU"] != 1 {
		t.Fatalf("expected unresolved row for UNKNOWN-SKU, got %v", store.unresolved)
	}
	if len(store.movements) != 0 {
		t.Fatalf("expected zero movements, got %d", len(store.movements))
	}
	if store.markers["ORD-3"] {
		t.Fatal("order with unresolved item must not be marked processed")
	}
}

func TestProcessBatchReturnSymmetry(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM001"] = decimal.NewFromInt(10)
	store.stock["CM003"] = decimal.NewFromInt(10)

	sale := saleItem("ORD-4", "L1", 1)
	sale.PlatformProductCode = "PLAT-PC001"
	if _, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{sale}, batchOpts()); err != nil {
		t.Fatalf("sale batch: %v", err)
	}

	ret := saleItem("ORD-5", "L1", 1)
	ret.PlatformProductCode = "PLAT-PC001"
	ret.Direction = models.LineDirectionReturn
	if _, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{ret}, batchOpts()); err != nil {
		t.Fatalf("return batch: %v", err)
	}

	if !store.stock["CM001"].Equal(decimal.NewFromInt(10)) || !store.stock["CM003"].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("return did not restore stock: CM001=%s CM003=%s", store.stock["CM001"], store.stock["CM003"])
	}
}

func TestProcessBatchFloorAtZero(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM020"] = decimal.NewFromInt(2)

	item := saleItem("ORD-6", "L1", 5)
	item.RawChoiceText = "R05"

	result, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{item}, batchOpts())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if !store.stock["CM020"].Equal(decimal.Zero) {
		t.Fatalf("expected floored stock 0, got %s", store.stock["CM020"])
	}
	if len(result.Applied) != 1 || !result.Applied[0].Floored {
		t.Fatalf("expected floored applied delta, got %+v", result.Applied)
	}
	// The movement still records the full requested delta.
	if !store.movements[0].Delta.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("expected recorded delta -5, got %s", store.movements[0].Delta)
	}
}

func TestProcessBatchIdempotentOnMarkedOrder(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM020"] = decimal.NewFromInt(10)

	item := saleItem("ORD-7", "L1", 1)
	item.RawChoiceText = "R05"
	items := []models.OrderLineItem{item}

	if _, err := ProcessBatch(context.Background(), store, snap, items, batchOpts()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	movementsAfterFirst := len(store.movements)

	result, err := ProcessBatch(context.Background(), store, snap, items, batchOpts())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.DuplicateOrderCount != 1 {
		t.Fatalf("expected 1 duplicate order, got %d", result.DuplicateOrderCount)
	}
	if len(store.movements) != movementsAfterFirst {
		t.Fatalf("re-run produced %d extra movements", len(store.movements)-movementsAfterFirst)
	}
	if !store.stock["CM020"].Equal(decimal.NewFromInt(9)) {
		t.Fatalf("stock changed on duplicate run: %s", store.stock["CM020"])
	}
}

func TestProcessBatchDryRunPurity(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.stock["CM020"] = decimal.NewFromInt(10)

	item := saleItem("ORD-8", "L1", 4)
	item.RawChoiceText = "R05"
	items := []models.OrderLineItem{item}

	opts := batchOpts()
	opts.DryRun = true

	for i := 0; i < 2; i++ {
		result, err := ProcessBatch(context.Background(), store, snap, items, opts)
		if err != nil {
			t.Fatalf("dry run %d: %v", i, err)
		}
		if len(result.Applied) != 1 {
			t.Fatalf("dry run %d: expected would-be delta, got %+v", i, result.Applied)
		}
		if !result.Applied[0].AfterStock.Equal(decimal.NewFromInt(6)) {
			t.Fatalf("dry run %d: expected would-be after 6, got %s", i, result.Applied[0].AfterStock)
		}
	}

	if !store.stock["CM020"].Equal(decimal.NewFromInt(10)) {
		t.Fatalf("dry run mutated stock: %s", store.stock["CM020"])
	}
	if len(store.movements) != 0 || len(store.unresolved) != 0 || len(store.markers) != 0 {
		t.Fatal("dry run persisted state")
	}
}

func TestProcessBatchContinuesPastFailingCode(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()
	store.failCodes["CM001"] = fmt.Errorf("deadlock")
	store.stock["CM003"] = decimal.NewFromInt(10)

	item := saleItem("ORD-9", "L1", 1)
	item.PlatformProductCode = "PLAT-PC001"

	result, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{item}, batchOpts())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected 1 failed code, got %d", result.FailedCount)
	}
	if !store.stock["CM003"].Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected CM003 still applied, got %s", store.stock["CM003"])
	}
	if store.markers["ORD-9"] {
		t.Fatal("order touching a failed code must not be marked processed")
	}
}

func TestProcessBatchMultiTokenAnomaly(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore()

	item := saleItem("ORD-10", "L1", 1)
	item.RawChoiceText = "R05 and also B12"

	result, err := ProcessBatch(context.Background(), store, snap, []models.OrderLineItem{item}, batchOpts())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	found := false
	for _, a := range result.Anomalies {
		if a.Kind == AnomalyMultiTokenText {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected multi_choice_token anomaly, got %v", result.Anomalies)
	}
	// Only the first token generated a deduction.
	if len(store.movements) != 1 || store.movements[0].CommonCode != "CM020" {
		t.Fatalf("expected single CM020 movement, got %v", store.movements)
	}
}

func TestFloorAtZero(t *testing.T) {
	after, floored := FloorAtZero(decimal.NewFromInt(2), decimal.NewFromInt(-5))
	if !after.Equal(decimal.Zero) || !floored {
		t.Fatalf("expected (0, true), got (%s, %v)", after, floored)
	}

	after, floored = FloorAtZero(decimal.NewFromInt(2), decimal.NewFromInt(-2))
	if !after.Equal(decimal.Zero) || floored {
		t.Fatalf("expected exact zero without floor flag, got (%s, %v)", after, floored)
	}

	after, floored = FloorAtZero(decimal.NewFromInt(2), decimal.NewFromInt(3))
	if !after.Equal(decimal.NewFromInt(5)) || floored {
		t.Fatalf("expected (5, false), got (%s, %v)", after, floored)
	}
}
