package engine

import (
	"fmt"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

const (
	AnomalyCompositionGap = "composition_gap"
	AnomalyNestedBundle   = "nested_bundle"
	AnomalyMultiTokenText = "multi_choice_token"
)

// Anomaly is a non-fatal oddity detected while processing a batch. Anomalies
// never stop the batch; they are logged and reported in the BatchResult so
// the mapping owner can fix the data.
type Anomaly struct {
	Kind       string `json:"kind"`
	OrderRef   string `json:"order_ref"`
	LineId     string `json:"line_id"`
	CommonCode string `json:"common_code"`
	Detail     string `json:"detail"`
}

// ComponentQuantity is one physical deduction/addition unit produced by
// expansion. Quantity is a positive magnitude; the aggregator applies the
// direction sign.
type ComponentQuantity struct {
	CommonCode string
	Quantity   decimal.Decimal
	Reason     models.MovementReason
}

func reasonFor(direction models.LineDirection, component bool) models.MovementReason {
	if direction.Inbound() {
		if component {
			return models.MovementReasonReturnComponent
		}
		return models.MovementReasonReturn
	}
	if component {
		return models.MovementReasonSaleComponent
	}
	return models.MovementReasonSale
}

// Expand turns a resolved product into the ledger quantities it moves.
// Single products pass through. Bundle/set types expand one level through
// their composition rows; each component moves orderedQty x QuantityPerUnit.
//
// Two deliberate degradations, both flagged:
//   - a bundle-typed product with no composition rows is deducted as one
//     atomic unit (composition gap),
//   - a component whose own product entry is bundle-typed is NOT recursed
//     into; it is deducted as-is (nested bundle).
func Expand(snap *MappingSnapshot, item models.OrderLineItem, res *Resolution) ([]ComponentQuantity, []Anomaly) {
	if !res.ProductType.IsExpandable() {
		return []ComponentQuantity{{
			CommonCode: res.CommonCode,
			Quantity:   item.Quantity,
			Reason:     reasonFor(item.Direction, false),
		}}, nil
	}

	composition := snap.Bundles[res.CommonCode]
	if len(composition) == 0 {
		atomic := []ComponentQuantity{{
			CommonCode: res.CommonCode,
			Quantity:   item.Quantity,
			Reason:     reasonFor(item.Direction, false),
		}}
		return atomic, []Anomaly{{
			Kind:       AnomalyCompositionGap,
			OrderRef:   item.OrderRef,
			LineId:     item.LineId,
			CommonCode: res.CommonCode,
			Detail:     fmt.Sprintf("bundle %s (%s) has no composition rows; deducted atomically", res.CommonCode, res.ProductType),
		}}
	}

	var anomalies []Anomaly
	components := make([]ComponentQuantity, 0, len(composition))
	for _, row := range composition {
		if snap.ProductType(row.ComponentCode).IsExpandable() {
			anomalies = append(anomalies, Anomaly{
				Kind:       AnomalyNestedBundle,
				OrderRef:   item.OrderRef,
				LineId:     item.LineId,
				CommonCode: row.ComponentCode,
				Detail:     fmt.Sprintf("component %s of bundle %s is itself bundle-typed; not recursed", row.ComponentCode, res.CommonCode),
			})
		}
		components = append(components, ComponentQuantity{
			CommonCode: row.ComponentCode,
			Quantity:   item.Quantity.Mul(row.QuantityPerUnit),
			Reason:     reasonFor(item.Direction, true),
		})
	}
	return components, anomalies
}
