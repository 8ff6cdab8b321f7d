package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
)

// OrderLineItem is one sold unit-group from a marketplace order, normalized
// by the channel sync worker. The deduction engine only ever reads these rows.
type OrderLineItem struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	BusinessId          string          `gorm:"uniqueIndex:idx_order_line,priority:1;not null" json:"business_id"`
	Marketplace         string          `gorm:"uniqueIndex:idx_order_line,priority:2;size:50;not null" json:"marketplace"`
	OrderRef            string          `gorm:"uniqueIndex:idx_order_line,priority:3;size:128;not null" json:"order_ref"`
	LineId              string          `gorm:"uniqueIndex:idx_order_line,priority:4;size:128;not null" json:"line_id"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity" validate:"required"`
	RawSku              string          `gorm:"size:128" json:"raw_sku"`
	RawChoiceText       string          `gorm:"type:text" json:"raw_choice_text"`
	PlatformProductCode string          `gorm:"size:128" json:"platform_product_code"`
	Direction           LineDirection   `gorm:"type:enum('sale','return','cancel');default:'sale'" json:"direction" validate:"required,oneof=sale return cancel"`
	OrderedAt           time.Time       `json:"ordered_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewOrderLineItem struct {
	Marketplace         string          `json:"marketplace" validate:"required"`
	OrderRef            string          `json:"order_ref" validate:"required"`
	LineId              string          `json:"line_id" validate:"required"`
	Quantity            decimal.Decimal `json:"quantity" validate:"required"`
	RawSku              string          `json:"raw_sku"`
	RawChoiceText       string          `json:"raw_choice_text"`
	PlatformProductCode string          `json:"platform_product_code"`
	Direction           LineDirection   `json:"direction" validate:"required,oneof=sale return cancel"`
	OrderedAt           time.Time       `json:"ordered_at"`
}

func (input *NewOrderLineItem) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Quantity.Sign() <= 0 {
		return errors.New("quantity must be positive")
	}
	if input.RawSku == "" && input.RawChoiceText == "" && input.PlatformProductCode == "" {
		return errors.New("at least one of raw_sku, raw_choice_text, platform_product_code is required")
	}
	return nil
}

// UpsertOrderLineItem stores a normalized line item, idempotent on
// (business, marketplace, order_ref, line_id). Re-synced orders overwrite
// nothing: the first stored version wins, matching the immutability of
// ingested line items.
func UpsertOrderLineItem(ctx context.Context, input *NewOrderLineItem) (*OrderLineItem, bool, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, false, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, false, err
	}

	db := config.GetDB()

	var existing OrderLineItem
	err := db.WithContext(ctx).
		Where("business_id = ? AND marketplace = ? AND order_ref = ? AND line_id = ?",
			businessId, input.Marketplace, input.OrderRef, input.LineId).
		Take(&existing).Error
	if err == nil {
		return &existing, false, nil
	}

	item := OrderLineItem{
		BusinessId:          businessId,
		Marketplace:         input.Marketplace,
		OrderRef:            input.OrderRef,
		LineId:              input.LineId,
		Quantity:            input.Quantity,
		RawSku:              input.RawSku,
		RawChoiceText:       input.RawChoiceText,
		PlatformProductCode: input.PlatformProductCode,
		Direction:           input.Direction,
		OrderedAt:           input.OrderedAt,
	}
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, false, err
	}
	return &item, true, nil
}

// ListOrderLineItemsByRefs loads all line items of the given order refs,
// in stable (order_ref, line_id) order.
func ListOrderLineItemsByRefs(ctx context.Context, orderRefs []string) ([]OrderLineItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var items []OrderLineItem
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND order_ref IN ?", businessId, orderRefs).
		Order("order_ref, line_id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
