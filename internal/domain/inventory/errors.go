package inventory

import (
	"fmt"

	"github.com/erp/inventory/internal/domain/shared"
)

// NewInsufficientStockError reports a request that exceeds the available
// quantity. The available and requested amounts are carried as details so
// callers can surface them.
func NewInsufficientStockError(sku string, requested, available int64) *shared.DomainError {
	return shared.NewDomainError(
		shared.CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for %s: requested %d, available %d", sku, requested, available),
	).WithDetail("requested", requested).WithDetail("available", available)
}

// NewItemNotFoundError reports a missing inventory item
func NewItemNotFoundError(key string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("inventory item %s not found", key))
}

// NewDuplicateProductSkuError reports an attempt to create a second item for a SKU
func NewDuplicateProductSkuError(sku string) *shared.DomainError {
	return shared.NewDomainError(
		shared.CodeDuplicateProductSku,
		fmt.Sprintf("an inventory item already exists for product SKU %s", sku),
	)
}
