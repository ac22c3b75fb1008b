package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/adapter/storage"
)

var errStoreDown = errors.New("store down")

// staleReadStore reports a fixed stock value from Get so the fast-path check
// passes while the real counter is lower.
type staleReadStore struct {
	*storage.MemoryStore
	staleValue string
}

func (s *staleReadStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.staleValue, true, nil
}

// failingSetStore fails every Set, simulating a record write that dies after
// the stock decrement succeeded.
type failingSetStore struct {
	*storage.MemoryStore
}

func (s *failingSetStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errStoreDown
}

func newReservationService(t *testing.T) (*ReservationService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewReservationService(store, zap.NewNop()), store
}

func TestReserve_InvalidQuantity(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	for _, qty := range []int{0, -1, -100} {
		if err := svc.Reserve(ctx, "item-1", qty, "r1", time.Minute); !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestReserve_Success(t *testing.T) {
	svc, store := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)

	if err := svc.Reserve(ctx, "item-1", 3, "r1", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock, err := svc.Stock(ctx, "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 7 {
		t.Errorf("expected stock 7, got %d", stock)
	}

	if _, ok, _ := store.Get(ctx, "reservation:r1"); !ok {
		t.Error("expected reservation record to exist")
	}
}

func TestReserve_FastPathInsufficient(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 4)

	err := svc.Reserve(ctx, "item-1", 6, "r1", time.Minute)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 4 {
		t.Errorf("expected stock unchanged at 4, got %d", stock)
	}
}

func TestReserve_MissingCounterRollsBack(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	// No stock counter at all: the decrement auto-creates it negative and
	// the compensation must bring it back to exactly zero.
	err := svc.Reserve(ctx, "ghost-item", 2, "r1", time.Minute)
	if !errors.Is(err, ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	stock, _ := svc.Stock(ctx, "ghost-item")
	if stock != 0 {
		t.Errorf("expected stock 0 after rollback, got %d", stock)
	}
}

func TestReserve_LostRaceRollsBack(t *testing.T) {
	mem := storage.NewMemoryStore()
	ctx := context.Background()
	mem.Set(ctx, "stock:item-1", "4", 0)

	// Fast path sees 10, the decrement lands on 4.
	svc := NewReservationService(&staleReadStore{MemoryStore: mem, staleValue: "10"}, zap.NewNop())

	err := svc.Reserve(ctx, "item-1", 6, "r1", time.Minute)
	if !errors.Is(err, ErrStockConflict) {
		t.Fatalf("expected ErrStockConflict, got %v", err)
	}

	val, _, _ := mem.Get(ctx, "stock:item-1")
	if val != "4" {
		t.Errorf("expected stock restored to 4, got %s", val)
	}
}

func TestReserve_RecordWriteFailureCompensates(t *testing.T) {
	mem := storage.NewMemoryStore()
	ctx := context.Background()
	mem.Set(ctx, "stock:item-1", "10", 0)

	svc := NewReservationService(&failingSetStore{MemoryStore: mem}, zap.NewNop())

	err := svc.Reserve(ctx, "item-1", 3, "r1", time.Minute)
	if !errors.Is(err, ErrReservationFailed) {
		t.Fatalf("expected ErrReservationFailed, got %v", err)
	}

	val, _, _ := mem.Get(ctx, "stock:item-1")
	if val != "10" {
		t.Errorf("expected stock unchanged at 10, got %s", val)
	}
}

func TestReserve_Concurrent(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	initialStock := 20
	totalRequests := 50
	svc.SetStock(ctx, "concurrent-item", initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := svc.Reserve(ctx, "concurrent-item", 1, reservationID(id), time.Minute)
			if err == nil {
				successCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	stock, _ := svc.Stock(ctx, "concurrent-item")
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestRelease_RestoresExactQuantity(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	if err := svc.Reserve(ctx, "item-1", 5, "r1", time.Minute); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	svc.Release(ctx, "r1")

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 10 {
		t.Errorf("expected stock back to 10, got %d", stock)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	svc.Reserve(ctx, "item-1", 5, "r1", time.Minute)

	svc.Release(ctx, "r1")
	svc.Release(ctx, "r1")

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 10 {
		t.Errorf("expected stock 10 after double release, got %d", stock)
	}
}

func TestRelease_UnknownReservationIsNoop(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	svc.Release(ctx, "never-existed")

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}
}

func TestConfirm_KeepsDecrement(t *testing.T) {
	svc, store := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	svc.Reserve(ctx, "item-1", 4, "r1", time.Minute)

	svc.Confirm(ctx, "r1")
	svc.Confirm(ctx, "r1") // second confirm is a no-op

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 6 {
		t.Errorf("expected stock 6, got %d", stock)
	}

	if _, ok, _ := store.Get(ctx, "reservation:r1"); ok {
		t.Error("expected reservation record to be gone")
	}

	// Release after confirm must not restore stock.
	svc.Release(ctx, "r1")
	stock, _ = svc.Stock(ctx, "item-1")
	if stock != 6 {
		t.Errorf("expected stock still 6 after release-after-confirm, got %d", stock)
	}
}

func TestSweepExpired_RestoresAbandonedHold(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	if err := svc.Reserve(ctx, "item-1", 3, "r1", time.Minute); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Not due yet
	swept, err := svc.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("expected nothing swept, got %d", swept)
	}

	// Past expiry
	swept, err = svc.SweepExpired(ctx, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("expected 1 swept, got %d", swept)
	}

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", stock)
	}

	// Sweeping again restores nothing.
	swept, _ = svc.SweepExpired(ctx, time.Now().Add(2*time.Minute))
	if swept != 0 {
		t.Errorf("expected second sweep to be a no-op, got %d", swept)
	}
	stock, _ = svc.Stock(ctx, "item-1")
	if stock != 10 {
		t.Errorf("expected stock still 10, got %d", stock)
	}
}

func TestSweepExpired_RestoresAfterLongOutage(t *testing.T) {
	svc, store := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	if err := svc.Reserve(ctx, "item-1", 3, "r1", 50*time.Millisecond); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// The record must not expire on its own: if it did, a sweeper offline
	// for long enough could never learn the held quantity and the stock
	// would leak permanently.
	if ttl, _ := store.TTL(ctx, "reservation:r1"); ttl != 0 {
		t.Fatalf("expected reservation record without expiry, got ttl %v", ttl)
	}

	time.Sleep(80 * time.Millisecond)

	// First sweep since the lapse, arbitrarily late.
	swept, err := svc.SweepExpired(ctx, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("expected 1 swept, got %d", swept)
	}

	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", stock)
	}
}

func TestSweepExpired_SkipsConsumedReservations(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "item-1", 10)
	svc.Reserve(ctx, "item-1", 3, "confirmed", time.Minute)
	svc.Reserve(ctx, "item-1", 2, "released", time.Minute)

	svc.Confirm(ctx, "confirmed")
	svc.Release(ctx, "released")

	swept, err := svc.SweepExpired(ctx, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("expected nothing swept, got %d", swept)
	}

	// 10 - 3 confirmed + 2 released back = 9
	stock, _ := svc.Stock(ctx, "item-1")
	if stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
}

func TestReservationLifecycle_EndToEnd(t *testing.T) {
	svc, _ := newReservationService(t)
	ctx := context.Background()

	svc.SetStock(ctx, "sku-1", 10)

	// A holds 6
	if err := svc.Reserve(ctx, "sku-1", 6, "a1", time.Minute); err != nil {
		t.Fatalf("reserve a1 failed: %v", err)
	}
	stock, _ := svc.Stock(ctx, "sku-1")
	if stock != 4 {
		t.Fatalf("expected stock 4, got %d", stock)
	}

	// B wants 6, only 4 left
	err := svc.Reserve(ctx, "sku-1", 6, "b1", time.Minute)
	if !errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrStockConflict) {
		t.Fatalf("expected stock failure, got %v", err)
	}
	stock, _ = svc.Stock(ctx, "sku-1")
	if stock != 4 {
		t.Fatalf("expected stock still 4, got %d", stock)
	}

	// A's sale finalizes
	svc.Confirm(ctx, "a1")
	stock, _ = svc.Stock(ctx, "sku-1")
	if stock != 4 {
		t.Fatalf("expected stock 4 after confirm, got %d", stock)
	}

	// B retries with what's left
	if err := svc.Reserve(ctx, "sku-1", 4, "b2", time.Minute); err != nil {
		t.Fatalf("reserve b2 failed: %v", err)
	}
	stock, _ = svc.Stock(ctx, "sku-1")
	if stock != 0 {
		t.Fatalf("expected stock 0, got %d", stock)
	}
}

func reservationID(n int) string {
	return "res-" + strconv.Itoa(n)
}
