package inventory

import "time"

// Reservation is a temporary hold against a ledger's on-hand quantity.
// It has no identity outside the ledger that owns it; ReservationID is the
// caller-supplied idempotency key.
type Reservation struct {
	ReservationID string
	Quantity      int64
	ReservedAt    time.Time
	ExpiresAt     *time.Time
}

// IsExpired reports whether the reservation has an expiry that is in the past
func (r Reservation) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// ExpiredReservations returns the reservations that are stale at now and
// may be reclaimed, preserving their order.
func ExpiredReservations(reservations []Reservation, now time.Time) []Reservation {
	var expired []Reservation
	for _, r := range reservations {
		if r.IsExpired(now) {
			expired = append(expired, r)
		}
	}
	return expired
}

// ExpiryAfter returns now+window, or nil when window is not positive
// (a reservation without expiry).
func ExpiryAfter(now time.Time, window time.Duration) *time.Time {
	if window <= 0 {
		return nil
	}
	expiresAt := now.Add(window)
	return &expiresAt
}
