package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
)

// Imports canonical products, choice mappings and bundle compositions for one
// business from an xlsx workbook. The whole file loads in a single
// transaction; duplicate rows are skipped and reported, anything else rolls
// the import back.
//
// Usage:
//
//	mapping-import --business-id <id> --file <mappings.xlsx>
func main() {
	businessId := flag.String("business-id", "", "business id to import mappings for (required)")
	filePath := flag.String("file", "", "path to the xlsx workbook (required)")
	flag.Parse()

	if *businessId == "" || *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: mapping-import --business-id <id> --file <mappings.xlsx>")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessId)

	result, err := models.ImportMappingsFromXlsx(ctx, *filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("imported %d products, %d choice mappings, %d bundle components\n",
		result.ProductsImported, result.ChoicesImported, result.BundlesImported)
	for _, skipped := range result.SkippedRows {
		fmt.Printf("skipped: %s\n", skipped)
	}
	fmt.Println("mapping import completed")
}
