package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/core/domain"
	"github.com/wzuhqa/flashstock/internal/port"
	"github.com/wzuhqa/flashstock/pkg/metrics"
)

const (
	stockKeyPrefix       = "stock:"
	reservationKeyPrefix = "reservation:"
	deadlineIndexKey     = "reservations:deadlines"

	DefaultReservationTTL = 15 * time.Minute
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	// ErrInsufficientStock is the fast-path rejection: the counter was
	// already visibly below the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStockConflict means the decrement lost a race: stock looked
	// sufficient but was gone by the time the decrement landed.
	ErrStockConflict = errors.New("stock no longer available")

	ErrReservationFailed = errors.New("reservation failed")
)

// ReservationService holds provisional stock reservations on the shared KV
// store. The stock counter is mutated only through the store's atomic
// increment/decrement, which is the sole cross-caller serialization point:
// an oversold decrement is detected by its negative result and compensated,
// so the visible counter never settles below zero.
type ReservationService struct {
	store port.KVStore
	log   *zap.Logger
}

func NewReservationService(store port.KVStore, log *zap.Logger) *ReservationService {
	return &ReservationService{store: store, log: log}
}

// SetStock overwrites the reservable unit counter for a product.
func (s *ReservationService) SetStock(ctx context.Context, productID string, quantity int) error {
	return s.store.Set(ctx, stockKeyPrefix+productID, strconv.Itoa(quantity), 0)
}

// Stock reads the current reservable unit counter. Missing counter reads as 0.
func (s *ReservationService) Stock(ctx context.Context, productID string) (int64, error) {
	val, ok, err := s.store.Get(ctx, stockKeyPrefix+productID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(val, 10, 64)
}

// Reserve holds quantity units of productID under reservationID for ttl.
// Safe under arbitrary concurrency: the check below is only an optimization,
// the atomic decrement plus compensating increment is the actual guarantee.
func (s *ReservationService) Reserve(ctx context.Context, productID string, quantity int, reservationID string, ttl time.Duration) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if productID == "" || reservationID == "" {
		return fmt.Errorf("%w: product and reservation ids are required", ErrReservationFailed)
	}
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	stockKey := stockKeyPrefix + productID

	// Fast path: skip the decrement round trip when stock is obviously
	// short. Racy by design; the decrement below is authoritative.
	if current, ok, err := s.store.Get(ctx, stockKey); err == nil && ok {
		if n, perr := strconv.ParseInt(current, 10, 64); perr == nil && n < int64(quantity) {
			metrics.ReservationOps.WithLabelValues("insufficient").Inc()
			return ErrInsufficientStock
		}
	}

	remaining, err := s.store.DecrBy(ctx, stockKey, int64(quantity))
	if err != nil {
		metrics.ReservationOps.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: stock decrement: %v", ErrReservationFailed, err)
	}
	if remaining < 0 {
		// Oversold: this decrement pushed the counter negative. Undo it in
		// full and report the lost race.
		if _, rollbackErr := s.store.IncrBy(ctx, stockKey, int64(quantity)); rollbackErr != nil {
			s.log.Error("stock rollback failed, counter left negative",
				zap.String("product_id", productID),
				zap.Int("quantity", quantity),
				zap.Error(rollbackErr))
		}
		metrics.ReservationOps.WithLabelValues("conflict").Inc()
		return ErrStockConflict
	}

	now := time.Now()
	record := domain.Reservation{
		ID:        reservationID,
		ProductID: productID,
		Quantity:  quantity,
		ExpiresAt: now.Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return s.undoReserve(ctx, record, fmt.Errorf("marshal record: %w", err))
	}

	// The record carries no expiry of its own: every exit path (confirm,
	// release, sweep) deletes it, and a store TTL would make the held
	// quantity unreadable if the sweeper stays down past the deadline.
	if err := s.store.Set(ctx, reservationKeyPrefix+reservationID, string(payload), 0); err != nil {
		return s.undoReserve(ctx, record, fmt.Errorf("write record: %w", err))
	}
	if err := s.store.DeadlineAdd(ctx, deadlineIndexKey, reservationID, record.ExpiresAt); err != nil {
		// Without the index entry the sweeper would never see this
		// reservation, so an abandoned hold would leak stock forever.
		if delErr := s.store.Del(ctx, reservationKeyPrefix+reservationID); delErr != nil {
			s.log.Error("orphaned reservation record", zap.String("reservation_id", reservationID), zap.Error(delErr))
		}
		return s.undoReserve(ctx, record, fmt.Errorf("index reservation: %w", err))
	}

	metrics.ReservationOps.WithLabelValues("reserved").Inc()
	return nil
}

// undoReserve compensates a successful decrement whose bookkeeping failed.
func (s *ReservationService) undoReserve(ctx context.Context, record domain.Reservation, cause error) error {
	if _, err := s.store.IncrBy(ctx, stockKeyPrefix+record.ProductID, int64(record.Quantity)); err != nil {
		s.log.Error("stock compensation failed",
			zap.String("product_id", record.ProductID),
			zap.Int("quantity", record.Quantity),
			zap.Error(err))
	}
	metrics.ReservationOps.WithLabelValues("failed").Inc()
	return fmt.Errorf("%w: %v", ErrReservationFailed, cause)
}

// Release abandons a reservation and restores the held stock. A missing
// record (already released, confirmed, or swept) is a silent no-op, so
// callers may retry freely. The record delete is a compare-and-delete on the
// exact payload, so exactly one of any number of concurrent release/confirm
// calls consumes the record and restores stock.
func (s *ReservationService) Release(ctx context.Context, reservationID string) {
	recordKey := reservationKeyPrefix + reservationID

	payload, ok, err := s.store.Get(ctx, recordKey)
	if err != nil {
		s.log.Warn("release: record read failed", zap.String("reservation_id", reservationID), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	var record domain.Reservation
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		s.log.Error("release: record corrupt", zap.String("reservation_id", reservationID), zap.Error(err))
		return
	}

	consumed, err := s.store.CompareAndDelete(ctx, recordKey, payload)
	if err != nil {
		s.log.Warn("release: record delete failed", zap.String("reservation_id", reservationID), zap.Error(err))
		return
	}
	if !consumed {
		// Someone else consumed it between our read and delete.
		return
	}

	if err := s.store.DeadlineRemove(ctx, deadlineIndexKey, reservationID); err != nil {
		s.log.Warn("release: index cleanup failed", zap.String("reservation_id", reservationID), zap.Error(err))
	}

	if _, err := s.store.IncrBy(ctx, stockKeyPrefix+record.ProductID, int64(record.Quantity)); err != nil {
		s.log.Error("release: stock restore failed",
			zap.String("reservation_id", reservationID),
			zap.String("product_id", record.ProductID),
			zap.Int("quantity", record.Quantity),
			zap.Error(err))
		return
	}

	metrics.ReservationOps.WithLabelValues("released").Inc()
}

// Confirm finalizes a reservation: the record is deleted and the decrement
// made at reserve time becomes permanent. Idempotent; confirming an absent
// reservation is a no-op.
func (s *ReservationService) Confirm(ctx context.Context, reservationID string) {
	recordKey := reservationKeyPrefix + reservationID

	if err := s.store.Del(ctx, recordKey); err != nil {
		s.log.Warn("confirm: record delete failed", zap.String("reservation_id", reservationID), zap.Error(err))
		return
	}
	if err := s.store.DeadlineRemove(ctx, deadlineIndexKey, reservationID); err != nil {
		s.log.Warn("confirm: index cleanup failed", zap.String("reservation_id", reservationID), zap.Error(err))
	}

	metrics.ReservationOps.WithLabelValues("confirmed").Inc()
}

// SweepExpired restores stock for reservations whose expiry passed without a
// confirm or release. Returns the number of reservations swept. The
// compare-and-delete on the record guards against racing an explicit release,
// so each reservation restores stock at most once.
func (s *ReservationService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.DeadlineDue(ctx, deadlineIndexKey, now, 100)
	if err != nil {
		return 0, fmt.Errorf("read deadline index: %w", err)
	}

	swept := 0
	for _, reservationID := range due {
		recordKey := reservationKeyPrefix + reservationID

		payload, ok, err := s.store.Get(ctx, recordKey)
		if err != nil {
			s.log.Warn("sweep: record read failed", zap.String("reservation_id", reservationID), zap.Error(err))
			continue
		}
		if !ok {
			// Already consumed; just drop the index leftover.
			if err := s.store.DeadlineRemove(ctx, deadlineIndexKey, reservationID); err != nil {
				s.log.Warn("sweep: index cleanup failed", zap.String("reservation_id", reservationID), zap.Error(err))
			}
			continue
		}

		var record domain.Reservation
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			s.log.Error("sweep: record corrupt", zap.String("reservation_id", reservationID), zap.Error(err))
			continue
		}

		consumed, err := s.store.CompareAndDelete(ctx, recordKey, payload)
		if err != nil || !consumed {
			continue
		}
		if err := s.store.DeadlineRemove(ctx, deadlineIndexKey, reservationID); err != nil {
			s.log.Warn("sweep: index cleanup failed", zap.String("reservation_id", reservationID), zap.Error(err))
		}
		if _, err := s.store.IncrBy(ctx, stockKeyPrefix+record.ProductID, int64(record.Quantity)); err != nil {
			s.log.Error("sweep: stock restore failed",
				zap.String("reservation_id", reservationID),
				zap.String("product_id", record.ProductID),
				zap.Int("quantity", record.Quantity),
				zap.Error(err))
			continue
		}

		metrics.ReservationOps.WithLabelValues("expired").Inc()
		s.log.Info("expired reservation swept",
			zap.String("reservation_id", reservationID),
			zap.String("product_id", record.ProductID),
			zap.Int("quantity", record.Quantity))
		swept++
	}

	return swept, nil
}
