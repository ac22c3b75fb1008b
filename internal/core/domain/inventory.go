package domain

import "time"

type Inventory struct {
	ID        string
	ProductID string
	Stock     int
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}
