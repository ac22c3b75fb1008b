package port

import (
	"context"

	"github.com/wzuhqa/flashstock/internal/core/domain"
)

type DatabaseRepository interface {
	// CreateOrder persists a new order and applies the inventory decrement
	// with a stock guard.
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetInventory retrieves inventory by product ID.
	GetInventory(ctx context.Context, productID string) (*domain.Inventory, error)

	// UpdateInventory updates inventory with version check for optimistic locking.
	UpdateInventory(ctx context.Context, inventory domain.Inventory) error
}
