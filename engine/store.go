package engine

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// DBStore is the gorm-backed BatchStore.
type DBStore struct {
	DB *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{DB: db}
}

func (s *DBStore) CurrentStock(ctx context.Context, businessId string, commonCode string) (decimal.Decimal, error) {
	var record models.InventoryRecord
	err := s.DB.WithContext(ctx).
		Where("business_id = ? AND common_code = ?", businessId, commonCode).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return record.CurrentStock, nil
}

func (s *DBStore) ApplyDelta(ctx context.Context, businessId string, req DeltaRequest) (*AppliedDelta, error) {
	var applied AppliedDelta
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, _, err := models.LockInventoryRecord(tx, businessId, req.CommonCode)
		if err != nil {
			return err
		}

		before := record.CurrentStock
		after, floored := FloorAtZero(before, req.Delta)

		movement := models.InventoryMovement{
			ID:            uuid.New().String(),
			BusinessId:    businessId,
			CommonCode:    req.CommonCode,
			QtyDelta:      req.Delta,
			Reason:        req.Reason,
			Reference:     req.Reference,
			BeforeStock:   before,
			AfterStock:    after,
			CorrelationId: req.CorrelationId,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}

		now := time.Now()
		err = tx.Model(&models.InventoryRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"current_stock": after,
				"last_updated":  now,
			}).Error
		if err != nil {
			return err
		}

		applied = AppliedDelta{
			CommonCode:  req.CommonCode,
			Delta:       req.Delta,
			BeforeStock: before,
			AfterStock:  after,
			Floored:     floored,
			MovementId:  movement.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &applied, nil
}

func (s *DBStore) ProcessedOrders(ctx context.Context, businessId string, orderRefs []string) (map[string]bool, error) {
	processed := make(map[string]bool, len(orderRefs))
	if len(orderRefs) == 0 {
		return processed, nil
	}

	var markers []models.ProcessedBatchMarker
	err := s.DB.WithContext(ctx).
		Where("business_id = ? AND order_ref IN ?", businessId, orderRefs).
		Find(&markers).Error
	if err != nil {
		return nil, err
	}
	for _, m := range markers {
		processed[m.OrderRef] = true
	}
	return processed, nil
}

func (s *DBStore) MarkProcessed(ctx context.Context, businessId string, marketplace string, orderRef string, syncRunId uint) error {
	marker := models.ProcessedBatchMarker{
		BusinessId:  businessId,
		OrderRef:    orderRef,
		Marketplace: marketplace,
		SyncRunId:   syncRunId,
	}
	err := s.DB.WithContext(ctx).Create(&marker).Error
	if err != nil && isDuplicateKeyErr(err) {
		// Another worker marked it first; same outcome.
		return nil
	}
	return err
}

func (s *DBStore) RecordUnresolved(ctx context.Context, businessId string, marketplace string, identifier string, item models.OrderLineItem) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := models.UpsertUnresolvedItem(tx, businessId, marketplace, identifier, item)
		return err
	})
}
