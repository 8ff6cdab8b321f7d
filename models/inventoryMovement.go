package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
)

// InventoryMovement is the append-only audit ledger. One row per applied
// per-code delta, carrying the stock level before and after. Rows are never
// updated or deleted; drift repair replays them (cmd/inventory-rebuild).
type InventoryMovement struct {
	ID            string          `gorm:"size:36;primary_key" json:"id"` // uuid
	BusinessId    string          `gorm:"index:idx_inv_move_biz_code_date,priority:1;not null" json:"business_id"`
	CommonCode    string          `gorm:"index:idx_inv_move_biz_code_date,priority:2;size:64;not null" json:"common_code"`
	QtyDelta      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_delta"`
	Reason        MovementReason  `gorm:"type:enum('sale','sale_component','return','return_component','manual');not null" json:"reason"`
	Reference     string          `gorm:"size:512" json:"reference"` // contributing order_ref/line_id values
	BeforeStock   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"before_stock"`
	AfterStock    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"after_stock"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_inv_move_biz_code_date,priority:3" json:"created_at"`
}

func ListInventoryMovements(ctx context.Context, commonCode string, limit int) ([]InventoryMovement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId)
	if commonCode != "" {
		query = query.Where("common_code = ?", commonCode)
	}

	var movements []InventoryMovement
	err := query.Order("created_at desc, id desc").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
