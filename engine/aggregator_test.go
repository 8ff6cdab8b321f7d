package engine

import (
	"math/rand"
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

func TestDeltaSetDirectionSigns(t *testing.T) {
	set := NewDeltaSet()
	set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(3), Reason: models.MovementReasonSale},
		models.LineDirectionSale, "ORD-1", "L1")
	set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(1), Reason: models.MovementReasonReturn},
		models.LineDirectionReturn, "ORD-2", "L1")
	set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(1), Reason: models.MovementReasonReturn},
		models.LineDirectionCancel, "ORD-3", "L1")

	if got := set.Delta("CM001"); !got.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("expected net delta -1, got %s", got)
	}
}

func TestDeltaSetCommutativeUnderShuffle(t *testing.T) {
	type contribution struct {
		code      string
		qty       int64
		direction models.LineDirection
	}
	contributions := []contribution{
		{"CM001", 3, models.LineDirectionSale},
		{"CM003", 6, models.LineDirectionSale},
		{"CM001", 1, models.LineDirectionReturn},
		{"CM020", 2, models.LineDirectionSale},
		{"CM003", 2, models.LineDirectionCancel},
		{"CM020", 5, models.LineDirectionSale},
	}

	build := func(order []int) *DeltaSet {
		set := NewDeltaSet()
		for _, i := range order {
			c := contributions[i]
			set.Add(ComponentQuantity{CommonCode: c.code, Quantity: decimal.NewFromInt(c.qty)}, c.direction, "ORD", "L")
		}
		return set
	}

	base := []int{0, 1, 2, 3, 4, 5}
	want := build(base)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]int(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := build(shuffled)

		for _, code := range want.Codes() {
			if !got.Delta(code).Equal(want.Delta(code)) {
				t.Fatalf("trial %d: delta for %s = %s, want %s", trial, code, got.Delta(code), want.Delta(code))
			}
		}
		if len(got.Codes()) != len(want.Codes()) {
			t.Fatalf("trial %d: code sets differ", trial)
		}
	}
}

func TestDeltaSetReferenceTruncated(t *testing.T) {
	set := NewDeltaSet()
	for i := 0; i < 100; i++ {
		set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(1)},
			models.LineDirectionSale, "ORDER-WITH-A-LONG-REFERENCE", "LINE-9999")
	}
	if got := len(set.Reference("CM001")); got > maxReferenceLen {
		t.Fatalf("reference length %d exceeds %d", got, maxReferenceLen)
	}
}

func TestDeltaSetDistinctOrders(t *testing.T) {
	set := NewDeltaSet()
	set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(1)}, models.LineDirectionSale, "ORD-1", "L1")
	set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(1)}, models.LineDirectionSale, "ORD-1", "L2")
	set.Add(ComponentQuantity{CommonCode: "CM001", Quantity: decimal.NewFromInt(1)}, models.LineDirectionSale, "ORD-2", "L1")

	orders := set.Orders("CM001")
	if len(orders) != 2 || orders[0] != "ORD-1" || orders[1] != "ORD-2" {
		t.Fatalf("expected distinct orders [ORD-1 ORD-2], got %v", orders)
	}
}
