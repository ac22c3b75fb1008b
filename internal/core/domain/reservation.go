package domain

import "time"

// Reservation is a provisional, time-bounded hold on product stock. It is
// consumed exactly once by either a confirm (decrement becomes permanent) or
// a release (stock restored).
type Reservation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}
