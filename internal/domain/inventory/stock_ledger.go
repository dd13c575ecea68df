package inventory

import (
	"strings"
	"time"

	"github.com/erp/inventory/internal/domain/shared"
)

// ChangeKind tags a LedgerChange
type ChangeKind int

const (
	ChangeStockIncreased ChangeKind = iota + 1
	ChangeStockDecreased
	ChangeReserved
	ChangeReservationReleased
	ChangeLowStock
	ChangeOutOfStock
)

// String returns the change kind name
func (k ChangeKind) String() string {
	switch k {
	case ChangeStockIncreased:
		return "StockIncreased"
	case ChangeStockDecreased:
		return "StockDecreased"
	case ChangeReserved:
		return "Reserved"
	case ChangeReservationReleased:
		return "ReservationReleased"
	case ChangeLowStock:
		return "LowStock"
	case ChangeOutOfStock:
		return "OutOfStock"
	default:
		return "Unknown"
	}
}

// LedgerChange describes one state transition applied to a ledger. Which
// fields are meaningful depends on Kind:
//
//	StockIncreased/StockDecreased: Delta, PreviousQuantity, NewQuantity, Reason
//	Reserved/ReservationReleased:  Delta, AvailableQuantity, ReservationID
//	LowStock:                      NewQuantity, MinimumStockLevel
//	OutOfStock:                    none
type LedgerChange struct {
	Kind              ChangeKind
	Delta             int64
	PreviousQuantity  int64
	NewQuantity       int64
	AvailableQuantity int64
	MinimumStockLevel int64
	ReservationID     string
	Reason            string
}

// ConsumptionReason is the stock-decrease reason recorded when a reservation
// is confirmed
func ConsumptionReason(reservationID string) string {
	return "reservation:" + reservationID
}

// StockLedger holds the on-hand quantity and active reservations for one SKU
// and enforces:
//
//   - quantity >= 0
//   - sum of reservations <= quantity
//   - reservation IDs are unique; a reservation is removed once confirmed or released
//   - direct decreases only touch the unreserved portion
//
// Every operation validates before it mutates, so a failed call leaves the
// ledger untouched.
type StockLedger struct {
	productSku        string
	quantity          int64
	minimumStockLevel int64
	reservations      []Reservation
}

// NewStockLedger creates a ledger for a SKU
func NewStockLedger(productSku string, initialQuantity, minimumStockLevel int64) (StockLedger, error) {
	productSku = strings.TrimSpace(productSku)
	if productSku == "" {
		return StockLedger{}, shared.NewInvalidArgumentError("product SKU cannot be empty")
	}
	if initialQuantity < 0 {
		return StockLedger{}, shared.NewInvalidArgumentError("initial quantity cannot be negative, got %d", initialQuantity)
	}
	if minimumStockLevel < 0 {
		return StockLedger{}, shared.NewInvalidArgumentError("minimum stock level cannot be negative, got %d", minimumStockLevel)
	}
	return StockLedger{
		productSku:        productSku,
		quantity:          initialQuantity,
		minimumStockLevel: minimumStockLevel,
	}, nil
}

// RestoreStockLedger rebuilds a persisted ledger. The inputs are trusted.
func RestoreStockLedger(productSku string, quantity, minimumStockLevel int64, reservations []Reservation) StockLedger {
	restored := make([]Reservation, len(reservations))
	copy(restored, reservations)
	return StockLedger{
		productSku:        productSku,
		quantity:          quantity,
		minimumStockLevel: minimumStockLevel,
		reservations:      restored,
	}
}

// ProductSku returns the SKU
func (l *StockLedger) ProductSku() string { return l.productSku }

// Quantity returns the physical on-hand quantity
func (l *StockLedger) Quantity() int64 { return l.quantity }

// MinimumStockLevel returns the alarm threshold
func (l *StockLedger) MinimumStockLevel() int64 { return l.minimumStockLevel }

// Reservations returns a copy of the active reservations
func (l *StockLedger) Reservations() []Reservation {
	out := make([]Reservation, len(l.reservations))
	copy(out, l.reservations)
	return out
}

// ReservedQuantity returns the sum of active reservations
func (l *StockLedger) ReservedQuantity() int64 {
	var total int64
	for _, r := range l.reservations {
		total += r.Quantity
	}
	return total
}

// AvailableQuantity returns quantity minus reserved quantity
func (l *StockLedger) AvailableQuantity() int64 {
	return l.quantity - l.ReservedQuantity()
}

// IsOutOfStock reports whether nothing is on hand
func (l *StockLedger) IsOutOfStock() bool {
	return l.quantity == 0
}

// IsBelowMinimumStock reports whether quantity is at or under the threshold
func (l *StockLedger) IsBelowMinimumStock() bool {
	return l.quantity <= l.minimumStockLevel
}

// FindReservation looks up an active reservation
func (l *StockLedger) FindReservation(reservationID string) (Reservation, bool) {
	idx := l.indexOf(reservationID)
	if idx < 0 {
		return Reservation{}, false
	}
	return l.reservations[idx], true
}

// Increase adds stock
func (l *StockLedger) Increase(amount int64, reason string) ([]LedgerChange, error) {
	if amount <= 0 {
		return nil, shared.NewInvalidArgumentError("increase amount must be positive, got %d", amount)
	}
	return l.changeQuantity(amount, reason), nil
}

// Decrease removes unreserved stock. Reserved-but-unconfirmed stock cannot
// be decreased this way.
func (l *StockLedger) Decrease(amount int64, reason string) ([]LedgerChange, error) {
	if amount <= 0 {
		return nil, shared.NewInvalidArgumentError("decrease amount must be positive, got %d", amount)
	}
	if available := l.AvailableQuantity(); amount > available {
		return nil, NewInsufficientStockError(l.productSku, amount, available)
	}
	return l.changeQuantity(-amount, reason), nil
}

// Reserve places a hold. Reserving an ID that is already held is a no-op
// returning the existing reservation and no changes.
func (l *StockLedger) Reserve(quantity int64, reservationID string, expiresAt *time.Time, now time.Time) (Reservation, []LedgerChange, error) {
	if quantity <= 0 {
		return Reservation{}, nil, shared.NewInvalidArgumentError("reservation quantity must be positive, got %d", quantity)
	}
	if strings.TrimSpace(reservationID) == "" {
		return Reservation{}, nil, shared.NewInvalidArgumentError("reservation ID cannot be empty")
	}
	if existing, ok := l.FindReservation(reservationID); ok {
		return existing, nil, nil
	}
	if available := l.AvailableQuantity(); quantity > available {
		return Reservation{}, nil, NewInsufficientStockError(l.productSku, quantity, available)
	}

	reservation := Reservation{
		ReservationID: reservationID,
		Quantity:      quantity,
		ReservedAt:    now,
	}
	if expiresAt != nil {
		at := *expiresAt
		reservation.ExpiresAt = &at
	}
	l.reservations = append(l.reservations, reservation)

	return reservation, []LedgerChange{{
		Kind:              ChangeReserved,
		Delta:             quantity,
		AvailableQuantity: l.AvailableQuantity(),
		ReservationID:     reservationID,
	}}, nil
}

// ReleaseReservation gives a hold back. Releasing an unknown ID is a no-op.
func (l *StockLedger) ReleaseReservation(reservationID string) []LedgerChange {
	reservation, ok := l.remove(reservationID)
	if !ok {
		return nil
	}
	return []LedgerChange{l.releasedChange(reservation)}
}

// ConfirmReservation consumes a hold, permanently decreasing quantity by the
// reserved amount. Confirming an unknown ID is a no-op.
func (l *StockLedger) ConfirmReservation(reservationID string) []LedgerChange {
	reservation, ok := l.remove(reservationID)
	if !ok {
		return nil
	}
	return l.changeQuantity(-reservation.Quantity, ConsumptionReason(reservationID))
}

// ReclaimExpired releases every reservation that is expired at now
func (l *StockLedger) ReclaimExpired(now time.Time) []LedgerChange {
	expired := ExpiredReservations(l.reservations, now)
	if len(expired) == 0 {
		return nil
	}
	changes := make([]LedgerChange, 0, len(expired))
	for _, r := range expired {
		if _, ok := l.remove(r.ReservationID); ok {
			changes = append(changes, l.releasedChange(r))
		}
	}
	return changes
}

// HasExpiredReservations reports whether any reservation is stale at now
func (l *StockLedger) HasExpiredReservations(now time.Time) bool {
	for _, r := range l.reservations {
		if r.IsExpired(now) {
			return true
		}
	}
	return false
}

// changeQuantity applies a validated delta and appends threshold edges.
// Edges fire only on a false->true transition.
func (l *StockLedger) changeQuantity(delta int64, reason string) []LedgerChange {
	wasBelow := l.IsBelowMinimumStock()
	wasOut := l.IsOutOfStock()
	previous := l.quantity
	l.quantity += delta

	kind := ChangeStockIncreased
	magnitude := delta
	if delta < 0 {
		kind = ChangeStockDecreased
		magnitude = -delta
	}

	changes := []LedgerChange{{
		Kind:             kind,
		Delta:            magnitude,
		PreviousQuantity: previous,
		NewQuantity:      l.quantity,
		Reason:           reason,
	}}
	if !wasBelow && l.IsBelowMinimumStock() {
		changes = append(changes, LedgerChange{
			Kind:              ChangeLowStock,
			NewQuantity:       l.quantity,
			MinimumStockLevel: l.minimumStockLevel,
		})
	}
	if !wasOut && l.IsOutOfStock() {
		changes = append(changes, LedgerChange{Kind: ChangeOutOfStock})
	}
	return changes
}

func (l *StockLedger) releasedChange(r Reservation) LedgerChange {
	return LedgerChange{
		Kind:              ChangeReservationReleased,
		Delta:             r.Quantity,
		AvailableQuantity: l.AvailableQuantity(),
		ReservationID:     r.ReservationID,
	}
}

func (l *StockLedger) indexOf(reservationID string) int {
	for i, r := range l.reservations {
		if r.ReservationID == reservationID {
			return i
		}
	}
	return -1
}

func (l *StockLedger) remove(reservationID string) (Reservation, bool) {
	idx := l.indexOf(reservationID)
	if idx < 0 {
		return Reservation{}, false
	}
	r := l.reservations[idx]
	l.reservations = append(l.reservations[:idx], l.reservations[idx+1:]...)
	return r, true
}
