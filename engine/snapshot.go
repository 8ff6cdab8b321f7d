package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/google/uuid"
)

const snapshotCacheTTL = 60 * time.Second

// MappingSnapshot is an immutable in-memory view of the three lookup tables.
// A batch runs against exactly one snapshot, so mapping edits made while a
// batch is in flight take effect on the next batch, never mid-batch.
type MappingSnapshot struct {
	Version          string                                `json:"version"`
	BusinessId       string                                `json:"business_id"`
	LoadedAt         time.Time                             `json:"loaded_at"`
	ChoiceToCommon   map[string]string                     `json:"choice_to_common"`
	SkuToCommon      map[string]string                     `json:"sku_to_common"`
	VariantToCommon  map[string]string                     `json:"variant_to_common"`
	PlatformToCommon map[string]string                     `json:"platform_to_common"`
	Products         map[string]models.CanonicalProduct    `json:"products"`
	Bundles          map[string][]models.BundleComposition `json:"bundles"`
}

// ProductType returns the registered type for a common code, defaulting to
// single for codes mapped by choice/sku tables but missing a product row.
func (s *MappingSnapshot) ProductType(commonCode string) models.ProductType {
	if p, ok := s.Products[commonCode]; ok {
		return p.ProductType
	}
	return models.ProductTypeSingle
}

// BuildMappingSnapshot assembles a snapshot from already-loaded rows.
// Pure; used directly by tests and by LoadMappingSnapshot.
func BuildMappingSnapshot(businessId string, products []models.CanonicalProduct, mappings []models.ChoiceMapping, compositions []models.BundleComposition) *MappingSnapshot {
	snap := &MappingSnapshot{
		Version:          uuid.New().String(),
		BusinessId:       businessId,
		LoadedAt:         time.Now(),
		ChoiceToCommon:   make(map[string]string, len(mappings)),
		SkuToCommon:      make(map[string]string, len(products)),
		VariantToCommon:  make(map[string]string, len(products)),
		PlatformToCommon: make(map[string]string, len(products)),
		Products:         make(map[string]models.CanonicalProduct, len(products)),
		Bundles:          make(map[string][]models.BundleComposition),
	}
	for _, m := range mappings {
		snap.ChoiceToCommon[m.ChoiceCode] = m.CommonCode
	}
	for _, p := range products {
		snap.Products[p.CommonCode] = p
		if p.Sku != "" {
			snap.SkuToCommon[p.Sku] = p.CommonCode
		}
		if p.VariantId != "" {
			snap.VariantToCommon[p.VariantId] = p.CommonCode
		}
		if p.PlatformProductCode != "" {
			snap.PlatformToCommon[p.PlatformProductCode] = p.CommonCode
		}
	}
	for _, c := range compositions {
		snap.Bundles[c.CommonCode] = append(snap.Bundles[c.CommonCode], c)
	}
	return snap
}

// LoadMappingSnapshot loads the lookup tables for the business in context,
// going through the Redis cache first. Mapping writers invalidate the key.
func LoadMappingSnapshot(ctx context.Context) (*MappingSnapshot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	cacheKey := "MappingSnapshot:" + businessId
	var cached MappingSnapshot
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	products, err := models.ListCanonicalProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	mappings, err := models.ListChoiceMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load choice mappings: %w", err)
	}
	compositions, err := models.ListBundleCompositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bundle compositions: %w", err)
	}

	snap := BuildMappingSnapshot(businessId, products, mappings, compositions)
	_ = config.SetRedisObject(cacheKey, snap, snapshotCacheTTL)
	return snap, nil
}
