package models

import "gorm.io/gorm"

// MigrateTable runs gorm AutoMigrate for every table the service owns.
// Called once at startup by each cmd before serving.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&CanonicalProduct{},
		&ChoiceMapping{},
		&BundleComposition{},
		&OrderLineItem{},
		&InventoryRecord{},
		&InventoryMovement{},
		&UnresolvedItem{},
		&ProcessedBatchMarker{},
		&IdempotencyKey{},
		&SyncConnection{},
		&SyncRun{},
		&SyncRunError{},
	)
}
