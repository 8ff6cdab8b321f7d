package models

import "time"

// ProcessedBatchMarker records order refs whose resolvable line items were
// fully applied to the ledger (non-dry-run). The unique index is the
// idempotency guarantee: a second application attempt either finds the row
// or loses the insert race on it. Orders left partially or fully unresolved
// get no marker so they re-process once mappings are added.
type ProcessedBatchMarker struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"size:64;not null;index:uniq_batch_marker,unique" json:"business_id"`
	OrderRef    string    `gorm:"size:128;not null;index:uniq_batch_marker,unique" json:"order_ref"`
	Marketplace string    `gorm:"size:50" json:"marketplace"`
	SyncRunId   uint      `gorm:"index" json:"sync_run_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
