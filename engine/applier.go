package engine

import (
	"context"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
)

// BatchStore is the persistence surface ProcessBatch needs. The gorm
// implementation lives in store.go; tests substitute an in-memory fake.
type BatchStore interface {
	// CurrentStock returns the stock level for a code, zero when no
	// inventory record exists yet.
	CurrentStock(ctx context.Context, businessId string, commonCode string) (decimal.Decimal, error)
	// ApplyDelta locks the inventory record (creating it lazily), floors
	// the new stock at zero, appends the audit movement and persists the
	// new level, all in one transaction.
	ApplyDelta(ctx context.Context, businessId string, req DeltaRequest) (*AppliedDelta, error)
	// ProcessedOrders reports which of the given order refs already carry
	// a batch marker.
	ProcessedOrders(ctx context.Context, businessId string, orderRefs []string) (map[string]bool, error)
	// MarkProcessed writes the order's batch marker. Losing the insert
	// race to a concurrent worker is not an error.
	MarkProcessed(ctx context.Context, businessId string, marketplace string, orderRef string, syncRunId uint) error
	// RecordUnresolved upserts the unresolved-queue row for a failed
	// identifier.
	RecordUnresolved(ctx context.Context, businessId string, marketplace string, identifier string, item models.OrderLineItem) error
}

// DeltaRequest is one per-code ledger mutation.
type DeltaRequest struct {
	CommonCode    string
	Delta         decimal.Decimal
	Reason        models.MovementReason
	Reference     string
	CorrelationId string
}

// AppliedDelta reports one per-code ledger outcome, including the dry-run
// would-be outcome.
type AppliedDelta struct {
	CommonCode  string          `json:"common_code"`
	Delta       decimal.Decimal `json:"delta"`
	BeforeStock decimal.Decimal `json:"before_stock"`
	AfterStock  decimal.Decimal `json:"after_stock"`
	Floored     bool            `json:"floored"`
	MovementId  string          `json:"movement_id,omitempty"`
}

// ApplyError ties a per-code failure to its code so the worker can write a
// retryable SyncRunError row for it.
type ApplyError struct {
	CommonCode string
	Err        error
}

func (e ApplyError) Error() string {
	return e.CommonCode + ": " + e.Err.Error()
}

func (e ApplyError) Unwrap() error {
	return e.Err
}

// FloorAtZero computes the post-application stock level. Stock never goes
// below zero no matter how large the deduction; the movement row still
// records the full requested delta, so the floor is auditable.
func FloorAtZero(current decimal.Decimal, delta decimal.Decimal) (after decimal.Decimal, floored bool) {
	after = current.Add(delta)
	if after.Sign() < 0 {
		return decimal.Zero, true
	}
	return after, false
}

// ApplyDeltaSet applies every aggregated per-code delta. Codes are walked in
// sorted order; one failing code is recorded and the rest still apply. In
// dry-run mode it computes every would-be outcome from current stock levels
// and persists nothing.
func ApplyDeltaSet(ctx context.Context, store BatchStore, businessId string, set *DeltaSet, correlationId string, dryRun bool) ([]AppliedDelta, []ApplyError) {
	logger := config.GetLogger()

	applied := make([]AppliedDelta, 0, set.Len())
	var failures []ApplyError

	for _, code := range set.Codes() {
		delta := set.Delta(code)
		if delta.IsZero() {
			continue
		}

		if dryRun {
			current, err := store.CurrentStock(ctx, businessId, code)
			if err != nil {
				failures = append(failures, ApplyError{CommonCode: code, Err: err})
				continue
			}
			after, floored := FloorAtZero(current, delta)
			applied = append(applied, AppliedDelta{
				CommonCode:  code,
				Delta:       delta,
				BeforeStock: current,
				AfterStock:  after,
				Floored:     floored,
			})
			continue
		}

		result, err := store.ApplyDelta(ctx, businessId, DeltaRequest{
			CommonCode:    code,
			Delta:         delta,
			Reason:        set.Reason(code),
			Reference:     set.Reference(code),
			CorrelationId: correlationId,
		})
		if err != nil {
			config.LogError(logger, "engine", "ApplyDeltaSet", "apply delta", map[string]interface{}{
				"business_id": businessId,
				"common_code": code,
				"delta":       delta.String(),
			}, err)
			failures = append(failures, ApplyError{CommonCode: code, Err: err})
			continue
		}
		applied = append(applied, *result)
	}
	return applied, failures
}
