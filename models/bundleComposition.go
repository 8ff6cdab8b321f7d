package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
)

// BundleComposition lists the components a bundle/set canonical code
// physically consists of. Seq preserves the registration order of the
// components. Dangling component codes are tolerated by the expander
// (atomic fallback), so there is no FK constraint here.
type BundleComposition struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"uniqueIndex:idx_bundle_component,priority:1;not null" json:"business_id"`
	CommonCode      string          `gorm:"uniqueIndex:idx_bundle_component,priority:2;size:64;not null" json:"common_code"`
	Seq             int             `gorm:"uniqueIndex:idx_bundle_component,priority:3;not null" json:"seq"`
	ComponentCode   string          `gorm:"index;size:64;not null" json:"component_code"`
	QuantityPerUnit decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_per_unit"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBundleComposition struct {
	CommonCode      string          `json:"common_code" validate:"required"`
	Seq             int             `json:"seq"`
	ComponentCode   string          `json:"component_code" validate:"required"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit" validate:"required"`
}

func CreateBundleComposition(ctx context.Context, input *NewBundleComposition) (*BundleComposition, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.QuantityPerUnit.Sign() <= 0 {
		return nil, errors.New("quantity per unit must be positive")
	}

	row := BundleComposition{
		BusinessId:      businessId,
		CommonCode:      strings.TrimSpace(input.CommonCode),
		Seq:             input.Seq,
		ComponentCode:   strings.TrimSpace(input.ComponentCode),
		QuantityPerUnit: input.QuantityPerUnit,
	}
	if err := config.GetDB().WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListBundleCompositions returns all composition rows for the business,
// ordered by (common_code, seq) so snapshot building keeps component order.
func ListBundleCompositions(ctx context.Context) ([]BundleComposition, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var rows []BundleComposition
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("common_code, seq").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
