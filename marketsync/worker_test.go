package marketsync

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
)

func TestDirectionForOrder(t *testing.T) {
	cases := map[string]models.LineDirection{
		"COMPLETED": models.LineDirectionSale,
		"cancelled": models.LineDirectionCancel,
		"CANCELED":  models.LineDirectionCancel,
		"Returned":  models.LineDirectionReturn,
		"REFUNDED":  models.LineDirectionReturn,
		"":          models.LineDirectionSale,
	}
	for status, want := range cases {
		if got := directionForOrder(status); got != want {
			t.Errorf("directionForOrder(%q) = %s, want %s", status, got, want)
		}
	}
}

func TestDirectionForLineOverride(t *testing.T) {
	if got := directionForLine("refund"); got != models.LineDirectionReturn {
		t.Fatalf("expected return, got %s", got)
	}
	if got := directionForLine("unknown-type"); got != "" {
		t.Fatalf("expected empty direction for unknown type, got %s", got)
	}
}

func TestCursorStateRoundTrip(t *testing.T) {
	state := CursorState{
		"shopee": {UpdatedSince: "2026-08-01T00:00:00Z", Cursor: "abc"},
		"lazada": {UpdatedSince: "2026-08-02T00:00:00Z"},
	}
	decoded := DecodeCursorState(EncodeCursorState(state))
	if decoded["shopee"].Cursor != "abc" || decoded["lazada"].UpdatedSince != "2026-08-02T00:00:00Z" {
		t.Fatalf("cursor state round trip lost data: %v", decoded)
	}
}

func TestDecodeCursorStateGarbage(t *testing.T) {
	if got := DecodeCursorState([]byte("not json")); len(got) != 0 {
		t.Fatalf("expected empty state for garbage input, got %v", got)
	}
	if got := DecodeCursorState(nil); got == nil {
		t.Fatal("expected non-nil empty state")
	}
}

func TestDecodeSettingsFallback(t *testing.T) {
	settings := DecodeSettings([]byte(`{"marketplaces":["shopee"]}`))
	if len(settings.Marketplaces) != 1 || settings.Marketplaces[0] != "shopee" {
		t.Fatalf("unexpected settings: %v", settings)
	}
	if got := DecodeSettings([]byte("{bad")); len(got.Marketplaces) != 0 {
		t.Fatalf("expected defaults for bad input, got %v", got)
	}
}
