package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRecord is the current stock per canonical code. Rows are created
// lazily on first deduction/addition and are mutated only by the ledger
// applier. CurrentStock may be negative from historical drift in imported
// data, but the applier itself never writes a negative value.
type InventoryRecord struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"uniqueIndex:idx_inventory_code,priority:1;not null" json:"business_id"`
	CommonCode   string          `gorm:"uniqueIndex:idx_inventory_code,priority:2;size:64;not null" json:"common_code"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	MinimumStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"minimum_stock"`
	LastUpdated  *time.Time      `json:"last_updated"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LockInventoryRecord loads the record for update within tx, creating it
// lazily with zero stock when absent. Mirrors the row-lock discipline used
// for every read-modify-write on stock.
func LockInventoryRecord(tx *gorm.DB, businessId string, commonCode string) (*InventoryRecord, bool, error) {
	record := InventoryRecord{
		BusinessId: businessId,
		CommonCode: commonCode,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND common_code = ?", businessId, commonCode).
		FirstOrCreate(&record)
	if result.Error != nil {
		return nil, false, result.Error
	}
	created := result.RowsAffected == 1
	return &record, created, nil
}

func GetInventoryRecord(ctx context.Context, commonCode string) (*InventoryRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var record InventoryRecord
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND common_code = ?", businessId, commonCode).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func ListInventoryRecords(ctx context.Context) ([]InventoryRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var records []InventoryRecord
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("common_code").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListLowStockRecords returns records at or below their minimum stock.
func ListLowStockRecords(ctx context.Context) ([]InventoryRecord, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var records []InventoryRecord
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND current_stock <= minimum_stock", businessId).
		Order("common_code").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
