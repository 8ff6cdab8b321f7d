package engine

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

func TestExpandSinglePassThrough(t *testing.T) {
	snap := testSnapshot()
	item := models.OrderLineItem{Quantity: decimal.NewFromInt(2), Direction: models.LineDirectionSale}
	res := &Resolution{CommonCode: "CM020", ProductType: models.ProductTypeSingle}

	components, anomalies := Expand(snap, item, res)
	if len(anomalies) != 0 {
		t.Fatalf("unexpected anomalies: %v", anomalies)
	}
	if len(components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(components))
	}
	if components[0].CommonCode != "CM020" || !components[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected component %v", components[0])
	}
	if components[0].Reason != models.MovementReasonSale {
		t.Fatalf("expected sale reason, got %s", components[0].Reason)
	}
}

func TestExpandBundleMultipliesQuantities(t *testing.T) {
	snap := testSnapshot()
	item := models.OrderLineItem{Quantity: decimal.NewFromInt(3), Direction: models.LineDirectionSale}
	res := &Resolution{CommonCode: "PC001", ProductType: models.ProductTypeBundleFixed}

	components, anomalies := Expand(snap, item, res)
	if len(anomalies) != 0 {
		t.Fatalf("unexpected anomalies: %v", anomalies)
	}
	if len(components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(components))
	}
	if components[0].CommonCode != "CM001" || !components[0].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected first component %v", components[0])
	}
	if components[1].CommonCode != "CM003" || !components[1].Quantity.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unexpected second component %v", components[1])
	}
	for _, c := range components {
		if c.Reason != models.MovementReasonSaleComponent {
			t.Fatalf("expected sale_component reason, got %s", c.Reason)
		}
	}
}

func TestExpandReturnUsesReturnReasons(t *testing.T) {
	snap := testSnapshot()
	item := models.OrderLineItem{Quantity: decimal.NewFromInt(1), Direction: models.LineDirectionReturn}
	res := &Resolution{CommonCode: "PC001", ProductType: models.ProductTypeBundleFixed}

	components, _ := Expand(snap, item, res)
	for _, c := range components {
		if c.Reason != models.MovementReasonReturnComponent {
			t.Fatalf("expected return_component reason, got %s", c.Reason)
		}
	}
}

func TestExpandCompositionGapFallsBackAtomically(t *testing.T) {
	snap := testSnapshot()
	item := models.OrderLineItem{OrderRef: "ORD-1", LineId: "L1", Quantity: decimal.NewFromInt(4), Direction: models.LineDirectionSale}
	res := &Resolution{CommonCode: "PC777", ProductType: models.ProductTypeSetFixed}

	components, anomalies := Expand(snap, item, res)
	if len(components) != 1 || components[0].CommonCode != "PC777" {
		t.Fatalf("expected atomic fallback to PC777, got %v", components)
	}
	if !components[0].Quantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected quantity 4, got %s", components[0].Quantity)
	}
	if len(anomalies) != 1 || anomalies[0].Kind != AnomalyCompositionGap {
		t.Fatalf("expected composition_gap anomaly, got %v", anomalies)
	}
}

func TestExpandNestedBundleFlaggedNotRecursed(t *testing.T) {
	products := []models.CanonicalProduct{
		{CommonCode: "OUTER", ProductType: models.ProductTypeBundleComposite},
		{CommonCode: "INNER", ProductType: models.ProductTypeBundleFixed},
		{CommonCode: "LEAF", ProductType: models.ProductTypeSingle},
	}
	compositions := []models.BundleComposition{
		{CommonCode: "OUTER", Seq: 1, ComponentCode: "INNER", QuantityPerUnit: decimal.NewFromInt(1)},
		{CommonCode: "INNER", Seq: 1, ComponentCode: "LEAF", QuantityPerUnit: decimal.NewFromInt(5)},
	}
	snap := BuildMappingSnapshot("biz1", products, nil, compositions)

	item := models.OrderLineItem{Quantity: decimal.NewFromInt(2), Direction: models.LineDirectionSale}
	res := &Resolution{CommonCode: "OUTER", ProductType: models.ProductTypeBundleComposite}

	components, anomalies := Expand(snap, item, res)
	if len(components) != 1 || components[0].CommonCode != "INNER" {
		t.Fatalf("expected INNER deducted as-is, got %v", components)
	}
	if !components[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected quantity 2, got %s", components[0].Quantity)
	}
	if len(anomalies) != 1 || anomalies[0].Kind != AnomalyNestedBundle {
		t.Fatalf("expected nested_bundle anomaly, got %v", anomalies)
	}
}
