package engine

import (
	"reflect"
	"testing"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
)

func TestExtractChoiceTokens(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"single token", "Color choice: R05 red", []string{"R05"}},
		{"multiple tokens keep order", "R05 plus B12 and A01", []string{"R05", "B12", "A01"}},
		{"duplicates collapse", "R05 R05 B12", []string{"R05", "B12"}},
		{"word boundary required", "XR05Y AB123", nil},
		{"lowercase ignored", "r05 b12", nil},
		{"empty text", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractChoiceTokens(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractChoiceTokens(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractCandidatesOrder(t *testing.T) {
	item := models.OrderLineItem{
		RawChoiceText:       "option R05, also B12",
		RawSku:              "SKU-100",
		PlatformProductCode: "PP-9",
	}
	got := ExtractCandidates(item)
	want := []Candidate{
		{Identifier: "R05", Source: SourceChoice},
		{Identifier: "B12", Source: SourceChoice},
		{Identifier: "SKU-100", Source: SourceSku},
		{Identifier: "PP-9", Source: SourceFallback},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractCandidates = %v, want %v", got, want)
	}
}

func TestExtractCandidatesFallbackOnly(t *testing.T) {
	item := models.OrderLineItem{PlatformProductCode: "PP-9"}
	got := ExtractCandidates(item)
	if len(got) != 1 || got[0].Source != SourceFallback {
		t.Fatalf("expected single fallback candidate, got %v", got)
	}
}
