package models

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Sheet names expected in a mapping workbook. Products must be imported
// before Bundles so component codes can be checked.
const (
	importSheetProducts = "Products"
	importSheetChoices  = "ChoiceMappings"
	importSheetBundles  = "Bundles"
)

type MappingImportResult struct {
	ProductsImported int      `json:"products_imported"`
	ChoicesImported  int      `json:"choices_imported"`
	BundlesImported  int      `json:"bundles_imported"`
	SkippedRows      []string `json:"skipped_rows"`
}

// ImportMappingsFromXlsx loads canonical products, choice mappings and bundle
// compositions from a workbook. All three sheets import in one transaction;
// any hard validation error rolls everything back. Duplicate rows (already
// present mappings) are skipped and reported, not treated as failures.
func ImportMappingsFromXlsx(ctx context.Context, filePath string) (*MappingImportResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, fmt.Errorf("business id is required")
	}

	if !strings.HasSuffix(filePath, ".xlsx") {
		return nil, fmt.Errorf("invalid file type: only .xlsx files are allowed")
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open workbook: %v", err)
	}
	defer f.Close()

	result := &MappingImportResult{SkippedRows: make([]string, 0)}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer tx.Rollback()

	if err := importProductRows(tx, businessId, f, result); err != nil {
		return nil, err
	}
	if err := importChoiceRows(tx, businessId, f, result); err != nil {
		return nil, err
	}
	if err := importBundleRows(tx, businessId, f, result); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	// Mapping tables changed under any cached snapshot.
	_ = config.RemoveRedisKey("MappingSnapshot:" + businessId)

	return result, nil
}

// Products sheet: CommonCode | Name | Type | Sku | VariantId | PlatformProductCode
func importProductRows(tx *gorm.DB, businessId string, f *excelize.File, result *MappingImportResult) error {
	rows, err := f.GetRows(importSheetProducts)
	if err != nil {
		// Sheet is optional; a choices-only workbook is valid.
		return nil
	}

	for idx, row := range rows {
		if idx == 0 {
			continue // header
		}
		row = padRow(row, 6)

		commonCode := strings.TrimSpace(row[0])
		if commonCode == "" {
			continue
		}

		productType := ProductType(strings.TrimSpace(row[2]))
		switch productType {
		case ProductTypeSingle, ProductTypeBundleFixed, ProductTypeBundleComposite, ProductTypeSetFixed, ProductTypeSetSelectable:
		default:
			return fmt.Errorf("invalid product type %q in %s row %d", row[2], importSheetProducts, idx+1)
		}

		var count int64
		if err := tx.Model(&CanonicalProduct{}).
			Where("business_id = ? AND common_code = ?", businessId, commonCode).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			result.SkippedRows = append(result.SkippedRows, fmt.Sprintf("%s row %d: product %s already exists", importSheetProducts, idx+1, commonCode))
			continue
		}

		product := CanonicalProduct{
			BusinessId:          businessId,
			CommonCode:          commonCode,
			Name:                strings.TrimSpace(row[1]),
			ProductType:         productType,
			Sku:                 strings.TrimSpace(row[3]),
			VariantId:           strings.TrimSpace(row[4]),
			PlatformProductCode: strings.TrimSpace(row[5]),
		}
		if err := tx.Create(&product).Error; err != nil {
			return fmt.Errorf("%s row %d: %v", importSheetProducts, idx+1, err)
		}
		result.ProductsImported++
	}
	return nil
}

// ChoiceMappings sheet: ChoiceCode | CommonCode
func importChoiceRows(tx *gorm.DB, businessId string, f *excelize.File, result *MappingImportResult) error {
	rows, err := f.GetRows(importSheetChoices)
	if err != nil {
		return nil
	}

	for idx, row := range rows {
		if idx == 0 {
			continue
		}
		row = padRow(row, 2)

		choiceCode := strings.ToUpper(strings.TrimSpace(row[0]))
		commonCode := strings.TrimSpace(row[1])
		if choiceCode == "" {
			continue
		}
		if !choiceCodePattern.MatchString(choiceCode) {
			return fmt.Errorf("invalid choice code %q in %s row %d", row[0], importSheetChoices, idx+1)
		}
		if commonCode == "" {
			return fmt.Errorf("missing common code in %s row %d", importSheetChoices, idx+1)
		}

		var count int64
		if err := tx.Model(&ChoiceMapping{}).
			Where("business_id = ? AND choice_code = ?", businessId, choiceCode).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			result.SkippedRows = append(result.SkippedRows, fmt.Sprintf("%s row %d: choice %s already mapped", importSheetChoices, idx+1, choiceCode))
			continue
		}

		mapping := ChoiceMapping{
			BusinessId: businessId,
			ChoiceCode: choiceCode,
			CommonCode: commonCode,
		}
		if err := tx.Create(&mapping).Error; err != nil {
			return fmt.Errorf("%s row %d: %v", importSheetChoices, idx+1, err)
		}
		result.ChoicesImported++
	}
	return nil
}

// Bundles sheet: BundleCode | Seq | ComponentCode | QuantityPerUnit
func importBundleRows(tx *gorm.DB, businessId string, f *excelize.File, result *MappingImportResult) error {
	rows, err := f.GetRows(importSheetBundles)
	if err != nil {
		return nil
	}

	for idx, row := range rows {
		if idx == 0 {
			continue
		}
		row = padRow(row, 4)

		bundleCode := strings.TrimSpace(row[0])
		componentCode := strings.TrimSpace(row[2])
		if bundleCode == "" {
			continue
		}
		if componentCode == "" {
			return fmt.Errorf("missing component code in %s row %d", importSheetBundles, idx+1)
		}

		seq, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return fmt.Errorf("could not parse seq in %s row %d: %v", importSheetBundles, idx+1, err)
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(row[3]))
		if err != nil {
			return fmt.Errorf("could not parse quantity in %s row %d: %v", importSheetBundles, idx+1, err)
		}
		if !qty.IsPositive() {
			return fmt.Errorf("quantity must be positive in %s row %d", importSheetBundles, idx+1)
		}

		var bundle CanonicalProduct
		if err := tx.Where("business_id = ? AND common_code = ?", businessId, bundleCode).
			Take(&bundle).Error; err != nil {
			return fmt.Errorf("bundle %s not found (%s row %d)", bundleCode, importSheetBundles, idx+1)
		}
		if !bundle.ProductType.IsExpandable() {
			return fmt.Errorf("product %s is not a bundle type (%s row %d)", bundleCode, importSheetBundles, idx+1)
		}

		var count int64
		if err := tx.Model(&BundleComposition{}).
			Where("business_id = ? AND common_code = ? AND seq = ?", businessId, bundleCode, seq).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			result.SkippedRows = append(result.SkippedRows, fmt.Sprintf("%s row %d: bundle %s seq %d already exists", importSheetBundles, idx+1, bundleCode, seq))
			continue
		}

		composition := BundleComposition{
			BusinessId:      businessId,
			CommonCode:      bundleCode,
			Seq:             seq,
			ComponentCode:   componentCode,
			QuantityPerUnit: qty,
		}
		if err := tx.Create(&composition).Error; err != nil {
			return fmt.Errorf("%s row %d: %v", importSheetBundles, idx+1, err)
		}
		result.BundlesImported++
	}
	return nil
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}
