package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnresolvedItem aggregates line items whose identifiers failed resolution,
// keyed by the failed identifier so repeated occurrences of the same unknown
// SKU/token pile onto one row. Operators add the missing mapping and mark
// the row resolved (or excluded for discontinued products). Never touches
// inventory.
type UnresolvedItem struct {
	ID              int              `gorm:"primary_key" json:"id"`
	BusinessId      string           `gorm:"uniqueIndex:idx_unresolved_ident,priority:1;not null" json:"business_id"`
	Marketplace     string           `gorm:"uniqueIndex:idx_unresolved_ident,priority:2;size:50;not null" json:"marketplace"`
	Identifier      string           `gorm:"uniqueIndex:idx_unresolved_ident,priority:3;size:128;not null" json:"identifier"`
	SampleOrderRef  string           `gorm:"size:128" json:"sample_order_ref"`
	SampleLineId    string           `gorm:"size:128" json:"sample_line_id"`
	RawChoiceText   string           `gorm:"type:text" json:"raw_choice_text"`
	Quantity        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	OccurrenceCount int              `gorm:"default:0" json:"occurrence_count"`
	Status          UnresolvedStatus `gorm:"type:enum('pending','resolved','excluded');default:'pending';index" json:"status"`
	FirstSeen       time.Time        `json:"first_seen"`
	LastSeen        time.Time        `json:"last_seen"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertUnresolvedItem records one failed resolution. An existing row for
// the same identifier gets its aggregate quantity and occurrence count
// bumped; a resolved/excluded row that shows up again is reopened.
func UpsertUnresolvedItem(tx *gorm.DB, businessId string, marketplace string, identifier string, item OrderLineItem) (*UnresolvedItem, error) {
	now := time.Now()

	var existing UnresolvedItem
	err := tx.Where("business_id = ? AND marketplace = ? AND identifier = ?", businessId, marketplace, identifier).
		Take(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"quantity":         existing.Quantity.Add(item.Quantity),
			"occurrence_count": existing.OccurrenceCount + 1,
			"last_seen":        now,
		}
		if existing.Status != UnresolvedStatusPending {
			updates["status"] = UnresolvedStatusPending
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record := UnresolvedItem{
		BusinessId:      businessId,
		Marketplace:     marketplace,
		Identifier:      identifier,
		SampleOrderRef:  item.OrderRef,
		SampleLineId:    item.LineId,
		RawChoiceText:   item.RawChoiceText,
		Quantity:        item.Quantity,
		OccurrenceCount: 1,
		Status:          UnresolvedStatusPending,
		FirstSeen:       now,
		LastSeen:        now,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func ListUnresolvedItems(ctx context.Context, status UnresolvedStatus) ([]UnresolvedItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	query := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var items []UnresolvedItem
	if err := query.Order("last_seen desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// SetUnresolvedItemStatus transitions a queue entry to resolved/excluded.
func SetUnresolvedItemStatus(ctx context.Context, id int, status UnresolvedStatus) (*UnresolvedItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if status != UnresolvedStatusResolved && status != UnresolvedStatusExcluded && status != UnresolvedStatusPending {
		return nil, errors.New("invalid unresolved status")
	}

	db := config.GetDB().WithContext(ctx)
	var item UnresolvedItem
	if err := db.Where("id = ? AND business_id = ?", id, businessId).Take(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if err := db.Model(&item).Update("status", status).Error; err != nil {
		return nil, err
	}
	item.Status = status
	return &item, nil
}
