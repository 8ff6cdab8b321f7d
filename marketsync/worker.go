package marketsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/engine"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const writerLockTTL = 10 * time.Minute

var errWriterBusy = errors.New("another sync run holds the writer lock")

// processSyncRun executes one queued run end to end: pull orders from the
// aggregator, normalize them into line items, and feed the whole batch to
// the deduction engine. One logical writer per business at a time, enforced
// by a redis lock.
func processSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.BusinessId == "" {
		return errors.New("invalid payload")
	}

	ctx = utils.SetBusinessIdInContext(ctx, payload.BusinessId)
	db := config.GetDB().WithContext(ctx)
	logger := config.GetLogger()

	var run models.SyncRun
	if err := db.Where("id = ? AND business_id = ?", payload.RunId, payload.BusinessId).Take(&run).Error; err != nil {
		return err
	}
	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	var conn models.SyncConnection
	if err := db.Where("id = ? AND business_id = ?", run.ConnectionId, payload.BusinessId).Take(&conn).Error; err != nil {
		return err
	}
	if conn.Status != models.SyncConnectionStatusConnected {
		return markRunFailed(db, &run, errors.New("shopmaster not connected"))
	}

	var lock *redislock.Lock
	if locker := config.GetRedisLock(); locker != nil {
		var err error
		lock, err = locker.Obtain(config.GetRedisContext(), "stocksync:writer:"+payload.BusinessId, writerLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// Leave the run queued; Pub/Sub redelivery retries it.
			return errWriterBusy
		}
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release(config.GetRedisContext()) }()
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	settings := DecodeSettings(run.SettingsJSON)
	if len(settings.Marketplaces) == 0 {
		settings = DecodeSettings(conn.SettingsJSON)
	}
	cursorState := DecodeCursorState(conn.CursorStateJSON)

	client, err := newShopClient(conn.AuthSecretRef)
	if err != nil {
		return markRunFailed(db, &run, err)
	}

	marketplaces := settings.Marketplaces
	if len(marketplaces) == 0 {
		marketplaces = []string{"all"}
	}

	var items []models.OrderLineItem
	ingested := 0
	errorCount := 0

	for _, mp := range marketplaces {
		mpItems, count, newCursor, err := fetchOrders(ctx, db, run.ID, payload.BusinessId, client, mp, cursorState[mp], conn.LastSuccessSyncAt)
		items = append(items, mpItems...)
		ingested += count
		if err != nil {
			errorCount++
			_ = createSyncError(ctx, db, run.ID, payload.BusinessId, "", "", "fetch_failed", mp+": "+err.Error(), nil, true)
			continue
		}
		cursorState[mp] = newCursor
	}

	snapshot, err := engine.LoadMappingSnapshot(ctx)
	if err != nil {
		return markRunFailed(db, &run, err)
	}

	result, err := engine.ProcessBatch(ctx, engine.NewDBStore(config.GetDB()), snapshot, items, engine.BatchOptions{
		BusinessId:    payload.BusinessId,
		SyncRunId:     run.ID,
		CorrelationId: uuid.New().String(),
		DryRun:        run.DryRun,
	})
	if err != nil {
		return markRunFailed(db, &run, err)
	}

	for _, failure := range result.Failures {
		errorCount++
		_ = createSyncError(ctx, db, run.ID, payload.BusinessId, "", failure.CommonCode, "apply_failed", failure.Message, nil, true)
	}
	for _, anomaly := range result.Anomalies {
		payloadJSON, _ := json.Marshal(anomaly)
		_ = createSyncError(ctx, db, run.ID, payload.BusinessId, anomaly.OrderRef, anomaly.CommonCode, anomaly.Kind, anomaly.Detail, payloadJSON, false)
	}

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()
	status := models.SyncRunStatusSuccess
	if errorCount > 0 && ingested == 0 && len(result.Applied) == 0 {
		status = models.SyncRunStatusFailed
	} else if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	stats := map[string]interface{}{
		"ingested":         ingested,
		"resolved":         result.ResolvedCount,
		"unresolved":       result.UnresolvedCount,
		"applied_codes":    len(result.Applied),
		"duplicate_orders": result.DuplicateOrderCount,
		"marked_orders":    len(result.MarkedOrders),
		"anomalies":        len(result.Anomalies),
		"dry_run":          result.DryRun,
	}
	statsJSON, _ := json.Marshal(stats)
	cursorJSON := EncodeCursorState(cursorState)
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":            status,
		"finished_at":       finishedAt,
		"duration_ms":       durationMs,
		"records_synced":    ingested,
		"error_count":       errorCount,
		"stats_json":        statsJSON,
		"cursor_state_json": cursorJSON,
	}).Error; err != nil {
		return err
	}

	// Dry runs must not advance the connection cursor.
	if !run.DryRun {
		connUpdates := map[string]interface{}{
			"last_sync_at":      finishedAt,
			"cursor_state_json": cursorJSON,
		}
		if status == models.SyncRunStatusSuccess {
			connUpdates["last_success_sync_at"] = finishedAt
		}
		if err := db.Model(&models.SyncConnection{}).
			Where("id = ? AND business_id = ?", conn.ID, payload.BusinessId).
			Updates(connUpdates).Error; err != nil {
			return err
		}
	}

	config.LogWarn(logger, "marketsync", "processSyncRun", "run finished",
		"run="+strconv.FormatUint(uint64(run.ID), 10)+" status="+status)
	return nil
}

func fetchOrders(ctx context.Context, db *gorm.DB, runID uint, businessId string, client *shopClient, marketplace string, cursor CursorEntry, lastSuccess *time.Time) ([]models.OrderLineItem, int, CursorEntry, error) {
	updatedSince := strings.TrimSpace(cursor.UpdatedSince)
	if updatedSince == "" && lastSuccess != nil {
		updatedSince = lastSuccess.UTC().Format(time.RFC3339)
	}
	if updatedSince == "" {
		updatedSince = time.Now().Add(-30 * 24 * time.Hour).UTC().Format(time.RFC3339)
	}

	ordersPath := strings.TrimSpace(os.Getenv("SHOPMASTER_ORDERS_PATH"))
	if ordersPath == "" {
		ordersPath = "/v1/orders"
	}

	nextCursor := strings.TrimSpace(cursor.Cursor)
	var collected []models.OrderLineItem
	total := 0

	for {
		params := url.Values{}
		params.Set("updated_since", updatedSince)
		if nextCursor != "" {
			params.Set("cursor", nextCursor)
		}
		if marketplace != "" && marketplace != "all" {
			params.Set("marketplace", marketplace)
		}
		params.Set("limit", "200")

		resp, err := client.getList(ctx, ordersPath, params)
		if err != nil {
			return collected, total, CursorEntry{UpdatedSince: updatedSince, Cursor: nextCursor}, err
		}

		raws := resp.Data
		if len(raws) == 0 {
			raws = resp.Items
		}

		for _, raw := range raws {
			var order shopOrder
			if err := json.Unmarshal(raw, &order); err != nil {
				_ = createSyncError(ctx, db, runID, businessId, "", "", "invalid_payload", err.Error(), raw, true)
				continue
			}

			orderRef := strings.TrimSpace(order.OrderNumber)
			if orderRef == "" {
				orderRef = strings.TrimSpace(order.ID)
			}
			if orderRef == "" {
				_ = createSyncError(ctx, db, runID, businessId, "", "", "missing_order_ref", "order ref missing", raw, false)
				continue
			}

			orderMarketplace := strings.TrimSpace(order.Marketplace)
			if orderMarketplace == "" {
				orderMarketplace = marketplace
			}

			orderItems, err := normalizeOrder(ctx, db, runID, businessId, orderMarketplace, orderRef, order)
			if err != nil {
				_ = createSyncError(ctx, db, runID, businessId, orderRef, "", "normalize_failed", err.Error(), raw, true)
				continue
			}
			collected = append(collected, orderItems...)
			total++
		}

		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return collected, total, CursorEntry{UpdatedSince: updatedSince, Cursor: resp.NextCursor}, nil
		}
		nextCursor = resp.NextCursor
	}
}

// normalizeOrder turns every usable line of one marketplace order into
// stored OrderLineItems. Bad lines are recorded and skipped; the rest of
// the order still goes through.
func normalizeOrder(ctx context.Context, db *gorm.DB, runID uint, businessId string, marketplace string, orderRef string, order shopOrder) ([]models.OrderLineItem, error) {
	direction := directionForOrder(order.Status)
	orderedAt := parseTimeOrNow(order.OrderedAt)

	var items []models.OrderLineItem
	for idx, line := range order.lines() {
		lineId := strings.TrimSpace(line.ID)
		if lineId == "" {
			lineId = orderRef + "-" + strconv.Itoa(idx+1)
		}

		qty := decimalFromNumber(line.Quantity)
		if qty.LessThanOrEqual(decimal.Zero) {
			_ = createSyncError(ctx, db, runID, businessId, orderRef, "", "invalid_quantity", "line "+lineId+" has non-positive quantity", nil, false)
			continue
		}

		lineDirection := direction
		if d := directionForLine(line.Type); d != "" {
			lineDirection = d
		}

		input := &models.NewOrderLineItem{
			Marketplace:         marketplace,
			OrderRef:            orderRef,
			LineId:              lineId,
			Quantity:            qty,
			RawSku:              strings.TrimSpace(line.Sku),
			RawChoiceText:       line.ChoiceText,
			PlatformProductCode: strings.TrimSpace(line.ProductCode),
			Direction:           lineDirection,
			OrderedAt:           orderedAt,
		}
		item, _, err := models.UpsertOrderLineItem(ctx, input)
		if err != nil {
			_ = createSyncError(ctx, db, runID, businessId, orderRef, "", "store_failed", err.Error(), nil, true)
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

func directionForOrder(status string) models.LineDirection {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CANCELED", "CANCELLED":
		return models.LineDirectionCancel
	case "RETURNED", "REFUNDED":
		return models.LineDirectionReturn
	default:
		return models.LineDirectionSale
	}
}

func directionForLine(lineType string) models.LineDirection {
	switch strings.ToLower(strings.TrimSpace(lineType)) {
	case "return", "refund":
		return models.LineDirectionReturn
	case "cancel":
		return models.LineDirectionCancel
	case "sale":
		return models.LineDirectionSale
	default:
		return ""
	}
}

func markRunFailed(db *gorm.DB, run *models.SyncRun, cause error) error {
	finishedAt := time.Now()
	_ = db.Model(run).Updates(map[string]interface{}{
		"status":      models.SyncRunStatusFailed,
		"finished_at": finishedAt,
		"error_count": run.ErrorCount + 1,
	}).Error
	return cause
}

func createSyncError(ctx context.Context, db *gorm.DB, runId uint, businessId string, orderRef string, commonCode string, code string, message string, payload []byte, retryable bool) error {
	errRec := models.SyncRunError{
		SyncRunId:   runId,
		BusinessId:  businessId,
		OrderRef:    orderRef,
		CommonCode:  commonCode,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	return db.WithContext(ctx).Create(&errRec).Error
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func parseTimeOrNow(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Now()
}

