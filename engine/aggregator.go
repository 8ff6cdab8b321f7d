package engine

import (
	"sort"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

const maxReferenceLen = 512

// DeltaSet accumulates signed per-code quantities across a batch. Addition
// is commutative, so item order never affects the final deltas. References
// and the first-seen reason per code are carried for the audit movement.
type DeltaSet struct {
	deltas  map[string]decimal.Decimal
	reasons map[string]models.MovementReason
	refs    map[string][]string
	orders  map[string][]string
}

func NewDeltaSet() *DeltaSet {
	return &DeltaSet{
		deltas:  make(map[string]decimal.Decimal),
		reasons: make(map[string]models.MovementReason),
		refs:    make(map[string][]string),
		orders:  make(map[string][]string),
	}
}

// Add folds one expanded component quantity into the set. Sales deduct,
// returns and cancels add back.
func (s *DeltaSet) Add(cq ComponentQuantity, direction models.LineDirection, orderRef string, lineId string) {
	qty := cq.Quantity
	if !direction.Inbound() {
		qty = qty.Neg()
	}
	s.deltas[cq.CommonCode] = s.deltas[cq.CommonCode].Add(qty)
	if _, ok := s.reasons[cq.CommonCode]; !ok {
		s.reasons[cq.CommonCode] = cq.Reason
	}
	s.refs[cq.CommonCode] = append(s.refs[cq.CommonCode], orderRef+"/"+lineId)
	s.orders[cq.CommonCode] = append(s.orders[cq.CommonCode], orderRef)
}

// Codes returns the touched common codes in sorted order for deterministic
// application and stable test output.
func (s *DeltaSet) Codes() []string {
	codes := make([]string, 0, len(s.deltas))
	for code := range s.deltas {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *DeltaSet) Delta(code string) decimal.Decimal {
	return s.deltas[code]
}

func (s *DeltaSet) Reason(code string) models.MovementReason {
	if r, ok := s.reasons[code]; ok {
		return r
	}
	return models.MovementReasonManual
}

// Reference joins the contributing order_ref/line_id pairs, truncated to the
// movement column width.
func (s *DeltaSet) Reference(code string) string {
	joined := ""
	for i, ref := range s.refs[code] {
		if i > 0 {
			joined += ","
		}
		joined += ref
	}
	if len(joined) > maxReferenceLen {
		joined = joined[:maxReferenceLen]
	}
	return joined
}

// Orders returns the distinct order refs that contributed to a code.
func (s *DeltaSet) Orders(code string) []string {
	seen := make(map[string]bool, len(s.orders[code]))
	distinct := make([]string, 0, len(s.orders[code]))
	for _, ref := range s.orders[code] {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		distinct = append(distinct, ref)
	}
	return distinct
}

func (s *DeltaSet) Len() int {
	return len(s.deltas)
}
