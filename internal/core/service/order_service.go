package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/core/domain"
	"github.com/wzuhqa/flashstock/internal/port"
)

const idempotencyTTL = 24 * time.Hour

var ErrDuplicateRequest = errors.New("duplicate request")

// OrderService runs the purchase pipeline: dedupe the request, reserve stock,
// hand the order to the persistence workers. The reservation stays HELD until
// a worker confirms it (order saved) or releases it (save failed).
type OrderService struct {
	store          port.KVStore
	reservations   *ReservationService
	reservationTTL time.Duration
	orderQueue     chan domain.Order
	log            *zap.Logger
}

func NewOrderService(store port.KVStore, reservations *ReservationService, reservationTTL time.Duration, queueSize int, log *zap.Logger) *OrderService {
	if reservationTTL <= 0 {
		reservationTTL = DefaultReservationTTL
	}
	return &OrderService{
		store:          store,
		reservations:   reservations,
		reservationTTL: reservationTTL,
		orderQueue:     make(chan domain.Order, queueSize),
		log:            log,
	}
}

func (s *OrderService) Purchase(ctx context.Context, requestID, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	ok, err := s.store.SetNX(ctx, "order:"+requestID, userID, idempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return ErrDuplicateRequest
	}

	reservationID := uuid.NewString()
	if err := s.reservations.Reserve(ctx, productID, quantity, reservationID, s.reservationTTL); err != nil {
		// Nothing was ordered, so the same request id may retry.
		if delErr := s.store.Del(ctx, "order:"+requestID); delErr != nil {
			s.log.Warn("idempotency key cleanup failed",
				zap.String("request_id", requestID),
				zap.Error(delErr))
		}
		return err
	}

	now := time.Now()
	order := domain.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		ProductID:     productID,
		Quantity:      quantity,
		ReservationID: reservationID,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.orderQueue <- order

	return nil
}

func (s *OrderService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

func (s *OrderService) Close() {
	close(s.orderQueue)
}

// RunWorker drains the order queue into the database until the queue closes.
// A failed save releases the reservation so the held stock returns to the
// pool; a successful save confirms it.
func (s *OrderService) RunWorker(id int, db port.DatabaseRepository) {
	for order := range s.orderQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := db.CreateOrder(ctx, order); err != nil {
			s.log.Error("order save failed, releasing reservation",
				zap.Int("worker", id),
				zap.String("order_id", order.ID),
				zap.Error(err))
			s.reservations.Release(ctx, order.ReservationID)
		} else {
			s.reservations.Confirm(ctx, order.ReservationID)
			s.log.Info("order saved",
				zap.Int("worker", id),
				zap.String("order_id", order.ID))
		}

		cancel()
	}
}
