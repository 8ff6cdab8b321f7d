package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/engine"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Rebuilds current stock from the movement ledger. Each code's movements are
// replayed in order with the same floor-at-zero rule the live applier uses,
// and the resulting level overwrites InventoryRecord.current_stock. Run this
// after manual DB surgery or suspected drift between ledger and cache.
//
// Usage:
//
//	inventory-rebuild --business-id <id> [--common-code <code>] [--dry-run] [--continue-on-error]
func main() {
	businessId := flag.String("business-id", "", "business id to rebuild stock for (required)")
	commonCode := flag.String("common-code", "", "rebuild a single canonical code instead of all")
	dryRun := flag.Bool("dry-run", false, "report differences without writing")
	continueOnError := flag.Bool("continue-on-error", false, "keep going past per-code failures")
	flag.Parse()

	if *businessId == "" {
		fmt.Fprintln(os.Stderr, "usage: inventory-rebuild --business-id <id> [--common-code <code>] [--dry-run] [--continue-on-error]")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()

	codes, err := discoverCodes(db, *businessId, *commonCode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list codes: %v\n", err)
		os.Exit(1)
	}
	if len(codes) == 0 {
		fmt.Println("no movement ledger rows found, nothing to rebuild")
		return
	}

	rebuilt := 0
	drifted := 0
	failed := 0
	for _, code := range codes {
		changed, err := rebuildCode(db, *businessId, code, *dryRun)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "code %s: %v\n", code, err)
			if !*continueOnError {
				os.Exit(1)
			}
			continue
		}
		rebuilt++
		if changed {
			drifted++
		}
	}

	fmt.Printf("rebuilt %d codes, %d had drift, %d failed (dry-run=%v)\n", rebuilt, drifted, failed, *dryRun)
}

func discoverCodes(db *gorm.DB, businessId string, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	var codes []string
	err := db.Model(&models.InventoryMovement{}).
		Where("business_id = ?", businessId).
		Distinct("common_code").
		Order("common_code").
		Pluck("common_code", &codes).Error
	return codes, err
}

// rebuildCode replays the ledger for one code and reports whether the stored
// current stock differed from the replayed level.
func rebuildCode(db *gorm.DB, businessId string, code string, dryRun bool) (bool, error) {
	changed := false
	err := db.Transaction(func(tx *gorm.DB) error {
		record, _, err := models.LockInventoryRecord(tx, businessId, code)
		if err != nil {
			return err
		}

		var movements []models.InventoryMovement
		err = tx.Where("business_id = ? AND common_code = ?", businessId, code).
			Order("created_at asc, id asc").
			Find(&movements).Error
		if err != nil {
			return err
		}

		stock := decimal.Zero
		for _, movement := range movements {
			stock, _ = engine.FloorAtZero(stock, movement.QtyDelta)
		}

		if !record.CurrentStock.Equal(stock) {
			changed = true
			fmt.Printf("code %s: stored %s, replayed %s\n", code, record.CurrentStock.String(), stock.String())
		}
		if dryRun {
			return nil
		}

		now := time.Now()
		return tx.Model(&models.InventoryRecord{}).
			Where("business_id = ? AND common_code = ?", businessId, code).
			Updates(map[string]interface{}{
				"current_stock": stock,
				"last_updated":  &now,
			}).Error
	})
	return changed, err
}
