package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"gorm.io/gorm"
)

// CanonicalProduct is the product master entry: the cross-marketplace
// stable identity that inventory is tracked against. The platform-specific
// identifier columns (sku, variant id, platform product code) exist for
// reverse lookup only. Maintained externally; read-only to the engine.
type CanonicalProduct struct {
	ID                  int         `gorm:"primary_key" json:"id"`
	BusinessId          string      `gorm:"uniqueIndex:idx_common_code,priority:1;not null" json:"business_id"`
	CommonCode          string      `gorm:"uniqueIndex:idx_common_code,priority:2;size:64;not null" json:"common_code"`
	Name                string      `gorm:"size:255;not null" json:"name"`
	ProductType         ProductType `gorm:"type:enum('S','BF','BC','SF','SS');default:'S'" json:"product_type"`
	Sku                 string      `gorm:"index;size:128" json:"sku"`
	VariantId           string      `gorm:"index;size:128" json:"variant_id"`
	PlatformProductCode string      `gorm:"index;size:128" json:"platform_product_code"`
	IsActive            *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCanonicalProduct struct {
	CommonCode          string      `json:"common_code" validate:"required"`
	Name                string      `json:"name" validate:"required"`
	ProductType         ProductType `json:"product_type" validate:"required,oneof=S BF BC SF SS"`
	Sku                 string      `json:"sku"`
	VariantId           string      `json:"variant_id"`
	PlatformProductCode string      `json:"platform_product_code"`
}

func CreateCanonicalProduct(ctx context.Context, input *NewCanonicalProduct) (*CanonicalProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	product := CanonicalProduct{
		BusinessId:          businessId,
		CommonCode:          strings.TrimSpace(input.CommonCode),
		Name:                input.Name,
		ProductType:         input.ProductType,
		Sku:                 strings.TrimSpace(input.Sku),
		VariantId:           strings.TrimSpace(input.VariantId),
		PlatformProductCode: strings.TrimSpace(input.PlatformProductCode),
		IsActive:            utils.NewTrue(),
	}
	if err := config.GetDB().WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetCanonicalProductByCommonCode(ctx context.Context, commonCode string) (*CanonicalProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var product CanonicalProduct
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND common_code = ?", businessId, commonCode).
		Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

func ListCanonicalProducts(ctx context.Context) ([]CanonicalProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var products []CanonicalProduct
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("common_code").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}
