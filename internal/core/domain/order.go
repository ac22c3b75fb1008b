package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID            string
	UserID        string
	ProductID     string
	Quantity      int
	ReservationID string
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
