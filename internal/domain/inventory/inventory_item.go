package inventory

import (
	"time"

	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
)

// InventoryItem is the aggregate root binding an identity to one StockLedger.
// Each successful state-changing operation bumps the version exactly once and
// records the matching domain events; no-ops do neither.
type InventoryItem struct {
	shared.BaseAggregateRoot
	ledger StockLedger
}

// NewInventoryItem creates an item for a SKU. SKU uniqueness is enforced by
// the repository, not here.
func NewInventoryItem(productSku string, initialQuantity, minimumStockLevel int64) (*InventoryItem, error) {
	ledger, err := NewStockLedger(productSku, initialQuantity, minimumStockLevel)
	if err != nil {
		return nil, err
	}

	item := &InventoryItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ledger:            ledger,
	}
	item.AddDomainEvent(NewInventoryItemCreatedEvent(item))
	return item, nil
}

// RestoreInventoryItem rebuilds a persisted item without recording events
func RestoreInventoryItem(id uuid.UUID, version int, createdAt, updatedAt time.Time, ledger StockLedger) *InventoryItem {
	return &InventoryItem{
		BaseAggregateRoot: shared.RestoreBaseAggregateRoot(id, version, createdAt, updatedAt),
		ledger:            ledger,
	}
}

// ProductSku returns the SKU
func (i *InventoryItem) ProductSku() string { return i.ledger.ProductSku() }

// Quantity returns on-hand quantity
func (i *InventoryItem) Quantity() int64 { return i.ledger.Quantity() }

// MinimumStockLevel returns the alarm threshold
func (i *InventoryItem) MinimumStockLevel() int64 { return i.ledger.MinimumStockLevel() }

// ReservedQuantity returns the sum of active reservations
func (i *InventoryItem) ReservedQuantity() int64 { return i.ledger.ReservedQuantity() }

// AvailableQuantity returns quantity not held by reservations
func (i *InventoryItem) AvailableQuantity() int64 { return i.ledger.AvailableQuantity() }

// IsOutOfStock reports whether nothing is on hand
func (i *InventoryItem) IsOutOfStock() bool { return i.ledger.IsOutOfStock() }

// IsBelowMinimumStock reports whether quantity is at or under the threshold
func (i *InventoryItem) IsBelowMinimumStock() bool { return i.ledger.IsBelowMinimumStock() }

// Reservations returns a copy of the active reservations
func (i *InventoryItem) Reservations() []Reservation { return i.ledger.Reservations() }

// FindReservation looks up an active reservation
func (i *InventoryItem) FindReservation(reservationID string) (Reservation, bool) {
	return i.ledger.FindReservation(reservationID)
}

// HasExpiredReservations reports whether any reservation is stale at now
func (i *InventoryItem) HasExpiredReservations(now time.Time) bool {
	return i.ledger.HasExpiredReservations(now)
}

// IncreaseStock adds on-hand stock
func (i *InventoryItem) IncreaseStock(amount int64, reason string) error {
	changes, err := i.ledger.Increase(amount, reason)
	if err != nil {
		return err
	}
	i.apply(changes)
	return nil
}

// DecreaseStock removes unreserved on-hand stock
func (i *InventoryItem) DecreaseStock(amount int64, reason string) error {
	changes, err := i.ledger.Decrease(amount, reason)
	if err != nil {
		return err
	}
	i.apply(changes)
	return nil
}

// AdjustStock increases for a positive delta and decreases for a negative one
func (i *InventoryItem) AdjustStock(delta int64, reason string) error {
	switch {
	case delta > 0:
		return i.IncreaseStock(delta, reason)
	case delta < 0:
		return i.DecreaseStock(-delta, reason)
	default:
		return shared.NewInvalidArgumentError("stock adjustment delta cannot be zero")
	}
}

// Reserve places a hold after reclaiming reservations that expired by now.
// A repeated reservation ID returns the existing reservation.
func (i *InventoryItem) Reserve(quantity int64, reservationID string, expiresAt *time.Time, now time.Time) (Reservation, error) {
	// Validate against a scratch copy so a rejected reserve does not
	// reclaim anything either.
	scratch := RestoreStockLedger(i.ledger.productSku, i.ledger.quantity, i.ledger.minimumStockLevel, i.ledger.reservations)
	reclaimed := scratch.ReclaimExpired(now)
	reservation, reserved, err := scratch.Reserve(quantity, reservationID, expiresAt, now)
	if err != nil {
		return Reservation{}, err
	}

	i.ledger = scratch
	i.apply(append(reclaimed, reserved...))
	return reservation, nil
}

// ReleaseReservation gives a hold back; unknown IDs are a no-op
func (i *InventoryItem) ReleaseReservation(reservationID string) {
	i.apply(i.ledger.ReleaseReservation(reservationID))
}

// ConfirmReservation consumes a hold; unknown IDs are a no-op
func (i *InventoryItem) ConfirmReservation(reservationID string) {
	i.apply(i.ledger.ConfirmReservation(reservationID))
}

// ReclaimExpiredReservations releases every reservation expired at now and
// returns how many were reclaimed
func (i *InventoryItem) ReclaimExpiredReservations(now time.Time) int {
	changes := i.ledger.ReclaimExpired(now)
	i.apply(changes)
	return len(changes)
}

func (i *InventoryItem) apply(changes []LedgerChange) {
	if len(changes) == 0 {
		return
	}
	for _, change := range changes {
		if event := eventFor(i, change); event != nil {
			i.AddDomainEvent(event)
		}
	}
	i.IncrementVersion()
}
