package engine

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/stocksync_backend/engine")

type BatchOptions struct {
	BusinessId    string
	Marketplace   string
	SyncRunId     uint
	CorrelationId string
	DryRun        bool
}

// UnresolvedEntry is one identifier routed to the unresolved queue during
// this batch. In dry-run mode these are would-be entries only.
type UnresolvedEntry struct {
	Identifier string          `json:"identifier"`
	OrderRef   string          `json:"order_ref"`
	LineId     string          `json:"line_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// BatchFailure is one per-code apply failure, serializable for run stats
// and SyncRunError rows.
type BatchFailure struct {
	CommonCode string `json:"common_code"`
	Message    string `json:"message"`
}

type BatchResult struct {
	Applied             []AppliedDelta    `json:"applied"`
	Failures            []BatchFailure    `json:"failures"`
	ResolvedCount       int               `json:"resolved_count"`
	UnresolvedCount     int               `json:"unresolved_count"`
	FailedCount         int               `json:"failed_count"`
	DuplicateOrderCount int               `json:"duplicate_order_count"`
	MarkedOrders        []string          `json:"marked_orders"`
	Unresolved          []UnresolvedEntry `json:"unresolved"`
	Anomalies           []Anomaly         `json:"anomalies"`
	DryRun              bool              `json:"dry_run"`
}

// ProcessBatch runs the full pipeline over one batch of normalized line
// items: duplicate-order guard, per-item resolution, bundle expansion,
// in-memory delta aggregation, then a single ledger read-modify-write per
// touched code. Item-level failures degrade to unresolved-queue rows or
// failure counts; only a wholly unavailable store is fatal.
func ProcessBatch(ctx context.Context, store BatchStore, snap *MappingSnapshot, items []models.OrderLineItem, opts BatchOptions) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "engine.ProcessBatch")
	defer span.End()

	if store == nil {
		return nil, errors.New("store is required")
	}
	if snap == nil {
		return nil, errors.New("mapping snapshot is required")
	}
	if opts.BusinessId == "" {
		return nil, errors.New("business id is required")
	}
	if opts.CorrelationId == "" {
		opts.CorrelationId = uuid.New().String()
	}

	logger := config.GetLogger()
	result := &BatchResult{DryRun: opts.DryRun}

	orderRefs := make([]string, 0)
	seenRef := make(map[string]bool)
	orderMarketplace := make(map[string]string)
	for _, item := range items {
		if !seenRef[item.OrderRef] {
			seenRef[item.OrderRef] = true
			orderRefs = append(orderRefs, item.OrderRef)
			orderMarketplace[item.OrderRef] = item.Marketplace
		}
	}

	processed, err := store.ProcessedOrders(ctx, opts.BusinessId, orderRefs)
	if err != nil {
		return nil, fmt.Errorf("load processed order markers: %w", err)
	}
	for _, ref := range orderRefs {
		if processed[ref] {
			result.DuplicateOrderCount++
		}
	}

	set := NewDeltaSet()
	orderHasUnresolved := make(map[string]bool)
	orderCodes := make(map[string][]string)

	for _, item := range items {
		if processed[item.OrderRef] {
			continue
		}

		if tokens := ExtractChoiceTokens(item.RawChoiceText); len(tokens) > 1 {
			result.Anomalies = append(result.Anomalies, Anomaly{
				Kind:     AnomalyMultiTokenText,
				OrderRef: item.OrderRef,
				LineId:   item.LineId,
				Detail:   fmt.Sprintf("choice text contains %d tokens %v; only the first is resolved", len(tokens), tokens),
			})
		}

		res, failedIdentifier, err := Resolve(snap, item)
		if err != nil {
			orderHasUnresolved[item.OrderRef] = true
			result.UnresolvedCount++
			result.Unresolved = append(result.Unresolved, UnresolvedEntry{
				Identifier: failedIdentifier,
				OrderRef:   item.OrderRef,
				LineId:     item.LineId,
				Quantity:   item.Quantity,
			})
			if !opts.DryRun {
				if recErr := store.RecordUnresolved(ctx, opts.BusinessId, item.Marketplace, failedIdentifier, item); recErr != nil {
					config.LogError(logger, "engine", "ProcessBatch", "record unresolved item", map[string]interface{}{
						"business_id": opts.BusinessId,
						"identifier":  failedIdentifier,
						"order_ref":   item.OrderRef,
					}, recErr)
					result.FailedCount++
				}
			}
			continue
		}

		result.ResolvedCount++
		components, anomalies := Expand(snap, item, res)
		result.Anomalies = append(result.Anomalies, anomalies...)
		for _, cq := range components {
			set.Add(cq, item.Direction, item.OrderRef, item.LineId)
			orderCodes[item.OrderRef] = append(orderCodes[item.OrderRef], cq.CommonCode)
		}
	}

	applied, failures := ApplyDeltaSet(ctx, store, opts.BusinessId, set, opts.CorrelationId, opts.DryRun)
	result.Applied = applied
	result.FailedCount += len(failures)

	failedCodes := make(map[string]bool, len(failures))
	for _, f := range failures {
		failedCodes[f.CommonCode] = true
		result.Failures = append(result.Failures, BatchFailure{CommonCode: f.CommonCode, Message: f.Err.Error()})
	}

	if !opts.DryRun {
		for _, ref := range orderRefs {
			if processed[ref] || orderHasUnresolved[ref] || len(orderCodes[ref]) == 0 {
				continue
			}
			markable := true
			for _, code := range orderCodes[ref] {
				if failedCodes[code] {
					markable = false
					break
				}
			}
			if !markable {
				continue
			}
			marketplace := orderMarketplace[ref]
			if marketplace == "" {
				marketplace = opts.Marketplace
			}
			if err := store.MarkProcessed(ctx, opts.BusinessId, marketplace, ref, opts.SyncRunId); err != nil {
				config.LogError(logger, "engine", "ProcessBatch", "mark order processed", map[string]interface{}{
					"business_id": opts.BusinessId,
					"order_ref":   ref,
				}, err)
				result.FailedCount++
				continue
			}
			result.MarkedOrders = append(result.MarkedOrders, ref)
		}
	}

	return result, nil
}
