// README: Notification fan-out and queue tests.
package notify

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

func TestOrderChangedFanOut(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	riderID := uniqueID("r")
	o := &order.Order{
		ID:         uniqueID("o"),
		CustomerID: uniqueID("c"),
		VendorID:   uniqueID("v"),
		RiderID:    &riderID,
		Status:     order.StatusOutForDelivery,
	}
	entry := &order.HistoryEntry{OrderID: o.ID, Status: order.StatusOutForDelivery}

	if err := svc.OrderChanged(ctx, o, entry); err != nil {
		t.Fatalf("order changed: %v", err)
	}

	customerEvents, err := svc.Pending(ctx, types.Actor{ID: o.CustomerID, Role: types.RoleCustomer})
	if err != nil {
		t.Fatalf("pending customer: %v", err)
	}
	if len(customerEvents) != 1 {
		t.Fatalf("expected 1 customer event, got %d", len(customerEvents))
	}
	if customerEvents[0].Message != "your order is out for delivery" {
		t.Fatalf("unexpected customer message %q", customerEvents[0].Message)
	}

	riderEvents, err := svc.Pending(ctx, types.Actor{ID: riderID, Role: types.RoleRider})
	if err != nil {
		t.Fatalf("pending rider: %v", err)
	}
	if len(riderEvents) != 1 {
		t.Fatalf("expected 1 rider event, got %d", len(riderEvents))
	}

	// Draining empties the queue.
	again, err := svc.Pending(ctx, types.Actor{ID: o.CustomerID, Role: types.RoleCustomer})
	if err != nil {
		t.Fatalf("pending again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty queue after drain, got %d events", len(again))
	}
}

func TestOrderChangedWithoutRider(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	o := &order.Order{
		ID:         uniqueID("o"),
		CustomerID: uniqueID("c"),
		VendorID:   uniqueID("v"),
		Status:     order.StatusAccepted,
	}
	entry := &order.HistoryEntry{OrderID: o.ID, Status: order.StatusAccepted}

	if err := svc.OrderChanged(ctx, o, entry); err != nil {
		t.Fatalf("order changed: %v", err)
	}

	vendorEvents, err := svc.Pending(ctx, types.Actor{ID: o.VendorID, Role: types.RoleVendor})
	if err != nil {
		t.Fatalf("pending vendor: %v", err)
	}
	if len(vendorEvents) != 1 {
		t.Fatalf("expected 1 vendor event, got %d", len(vendorEvents))
	}
}

func TestSetAvailability(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	rider := types.Actor{ID: uniqueID("r"), Role: types.RoleRider}
	pos := types.Point{Lat: 6.5244, Lng: 3.3792}

	if err := svc.SetAvailability(ctx, rider, true, pos); err != nil {
		t.Fatalf("set available: %v", err)
	}
	ids, err := svc.Nearby(ctx, pos, 5)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if !containsID(ids, rider.ID) {
		t.Fatalf("expected available rider in nearby results")
	}

	if err := svc.SetAvailability(ctx, rider, false, types.Point{}); err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	ids, err = svc.Nearby(ctx, pos, 5)
	if err != nil {
		t.Fatalf("nearby after removal: %v", err)
	}
	if containsID(ids, rider.ID) {
		t.Fatalf("unavailable rider still in nearby results")
	}
}

func containsID(ids []types.ID, id types.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestRoleMessages(t *testing.T) {
	if got := customerMessage(order.StatusDelivered); got != "your order was delivered" {
		t.Fatalf("customer delivered message = %q", got)
	}
	if got := vendorMessage(order.StatusOutForDelivery); got != "a rider picked up the order" {
		t.Fatalf("vendor pickup message = %q", got)
	}
	if got := riderMessage(order.StatusPreparing); got != "delivery unassigned" {
		t.Fatalf("rider unassigned message = %q", got)
	}
	// Unmapped statuses fall back to a generic line instead of an empty string.
	if got := customerMessage(order.StatusPending); got == "" {
		t.Fatalf("expected fallback message for pending")
	}
}

func setupTestService(t *testing.T) *Service {
	t.Helper()

	addr := os.Getenv("DISHPATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("DISHPATCH_TEST_REDIS not set; skipping redis-backed tests")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	return NewService(NewStore(rdb), nil)
}

func uniqueID(prefix string) types.ID {
	return types.ID(fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()))
}
