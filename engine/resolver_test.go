package engine

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

func testSnapshot() *MappingSnapshot {
	products := []models.CanonicalProduct{
		{BusinessId: "biz1", CommonCode: "CM020", Name: "Red mug", ProductType: models.ProductTypeSingle},
		{BusinessId: "biz1", CommonCode: "CM001", Name: "Plate", ProductType: models.ProductTypeSingle, Sku: "SKU-CM001"},
		{BusinessId: "biz1", CommonCode: "CM003", Name: "Cup", ProductType: models.ProductTypeSingle, VariantId: "VAR-33"},
		{BusinessId: "biz1", CommonCode: "PC001", Name: "Tableware set", ProductType: models.ProductTypeBundleFixed, PlatformProductCode: "PLAT-PC001"},
		{BusinessId: "biz1", CommonCode: "PC777", Name: "Empty bundle", ProductType: models.ProductTypeSetFixed},
	}
	mappings := []models.ChoiceMapping{
		{BusinessId: "biz1", ChoiceCode: "R05", CommonCode: "CM020"},
		{BusinessId: "biz1", ChoiceCode: "B12", CommonCode: "CM001"},
	}
	compositions := []models.BundleComposition{
		{BusinessId: "biz1", CommonCode: "PC001", Seq: 1, ComponentCode: "CM001", QuantityPerUnit: decimal.NewFromInt(1)},
		{BusinessId: "biz1", CommonCode: "PC001", Seq: 2, ComponentCode: "CM003", QuantityPerUnit: decimal.NewFromInt(2)},
	}
	return BuildMappingSnapshot("biz1", products, mappings, compositions)
}

func TestResolveChoiceToken(t *testing.T) {
	snap := testSnapshot()
	item := models.OrderLineItem{RawChoiceText: "Choice: R05 red", Quantity: decimal.NewFromInt(1)}

	res, _, err := Resolve(snap, item)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.CommonCode != "CM020" {
		t.Fatalf("expected CM020, got %s", res.CommonCode)
	}
	if res.Source != SourceChoice {
		t.Fatalf("expected choice source, got %s", res.Source)
	}
}

func TestResolveFirstTokenOnly(t *testing.T) {
	snap := testSnapshot()
	// Z99 is unmapped; B12 maps to CM001. Only the first token counts,
	// so the chain moves past choice resolution entirely.
	item := models.OrderLineItem{RawChoiceText: "Z99 then B12", RawSku: "SKU-CM001"}

	res, _, err := Resolve(snap, item)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.Source != SourceSku {
		t.Fatalf("expected sku source after unmapped first token, got %s", res.Source)
	}
}

func TestResolveSkuThenVariant(t *testing.T) {
	snap := testSnapshot()

	res, _, err := Resolve(snap, models.OrderLineItem{RawSku: "SKU-CM001"})
	if err != nil || res.CommonCode != "CM001" {
		t.Fatalf("sku lookup: res=%v err=%v", res, err)
	}

	res, _, err = Resolve(snap, models.OrderLineItem{RawSku: "VAR-33"})
	if err != nil || res.CommonCode != "CM003" {
		t.Fatalf("variant lookup: res=%v err=%v", res, err)
	}
}

func TestResolvePlatformFallback(t *testing.T) {
	snap := testSnapshot()
	res, _, err := Resolve(snap, models.OrderLineItem{RawSku: "NOPE", PlatformProductCode: "PLAT-PC001"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.CommonCode != "PC001" || res.Source != SourceFallback {
		t.Fatalf("expected PC001 via fallback, got %v", res)
	}
}

func TestResolveFailureReportsBestIdentifier(t *testing.T) {
	snap := testSnapshot()

	_, identifier, err := Resolve(snap, models.OrderLineItem{RawChoiceText: "Q42 special", RawSku: "NOPE"})
	if !errors.Is(err, ErrNotResolved) {
		t.Fatalf("expected ErrNotResolved, got %v", err)
	}
	if identifier != "Q42" {
		t.Fatalf("expected failed identifier Q42, got %s", identifier)
	}

	_, identifier, err = Resolve(snap, models.OrderLineItem{RawSku: "NOPE"})
	if !errors.Is(err, ErrNotResolved) || identifier != "NOPE" {
		t.Fatalf("expected sku as failed identifier, got %s (%v)", identifier, err)
	}
}
