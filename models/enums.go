package models

type ProductType string

const (
	ProductTypeSingle          ProductType = "S"
	ProductTypeBundleFixed     ProductType = "BF"
	ProductTypeBundleComposite ProductType = "BC"
	ProductTypeSetFixed        ProductType = "SF"
	ProductTypeSetSelectable   ProductType = "SS"
)

// IsExpandable reports whether the product type is sold as one unit
// but deducted as its components.
func (t ProductType) IsExpandable() bool {
	switch t {
	case ProductTypeBundleFixed, ProductTypeBundleComposite, ProductTypeSetFixed, ProductTypeSetSelectable:
		return true
	}
	return false
}

type LineDirection string

const (
	LineDirectionSale   LineDirection = "sale"
	LineDirectionReturn LineDirection = "return"
	LineDirectionCancel LineDirection = "cancel"
)

// Inbound reports whether the direction adds stock back (returns and cancels).
func (d LineDirection) Inbound() bool {
	return d == LineDirectionReturn || d == LineDirectionCancel
}

type MovementReason string

const (
	MovementReasonSale            MovementReason = "sale"
	MovementReasonSaleComponent   MovementReason = "sale_component"
	MovementReasonReturn          MovementReason = "return"
	MovementReasonReturnComponent MovementReason = "return_component"
	MovementReasonManual          MovementReason = "manual"
)

type UnresolvedStatus string

const (
	UnresolvedStatusPending  UnresolvedStatus = "pending"
	UnresolvedStatusResolved UnresolvedStatus = "resolved"
	UnresolvedStatusExcluded UnresolvedStatus = "excluded"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleOperator UserRole = "operator"
)
