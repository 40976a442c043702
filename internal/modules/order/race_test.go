// README: Concurrency tests for claims and transitions (run with -race).
package order

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"dishpatch/internal/types"
)

func TestConcurrentClaimSameOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, nil, nil, nil, nil)

	o := mustCreateOrder(t, svc, "c_multi_claim", "v_multi_claim")
	mustTransition(t, svc, o.ID, vendorActor("v_multi_claim"), StatusAccepted)

	const riders = 8
	var wg sync.WaitGroup
	errs := make(chan error, riders)

	for i := 0; i < riders; i++ {
		rider := types.Actor{ID: types.ID(fmt.Sprintf("r%d", i)), Role: types.RoleRider}
		wg.Add(1)
		go func(r types.Actor) {
			defer wg.Done()
			_, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, Rider: r})
			errs <- err
		}(rider)
	}

	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		if err != ErrConflict {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", won)
	}

	got, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != StatusOutForDelivery {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
	if got.RiderID == nil || *got.RiderID == "" {
		t.Fatalf("expected rider_id to be set")
	}
}

func TestConcurrentClaimVsVendorCancel(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, nil, nil, nil, nil)

	o := mustCreateOrder(t, svc, "c_claim_cancel", "v_claim_cancel")
	mustTransition(t, svc, o.ID, vendorActor("v_claim_cancel"), StatusAccepted)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, Rider: types.Actor{ID: "r_cc", Role: types.RoleRider}})
		errs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Transition(ctx, TransitionCommand{
			OrderID: o.ID,
			Actor:   vendorActor("v_claim_cancel"),
			Target:  StatusCancelled,
			Note:    "out of stock",
		})
		errs <- err
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && err != ErrConflict && err != ErrInvalidTransition {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	// Either the rider won and the cancel still landed afterwards, or the
	// cancel won and the claim lost. Both leave a consistent state.
	if got.Status != StatusOutForDelivery && got.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

func TestDeclineReopensOrder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, nil, nil, nil, nil)

	o := mustCreateOrder(t, svc, "c_decline", "v_decline")
	mustTransition(t, svc, o.ID, vendorActor("v_decline"), StatusAccepted)

	first := types.Actor{ID: "r_decline_1", Role: types.RoleRider}
	if _, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, Rider: first}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Only the assigned rider may step back.
	other := types.Actor{ID: "r_decline_other", Role: types.RoleRider}
	if _, err := svc.Decline(ctx, DeclineCommand{OrderID: o.ID, Rider: other}); err != ErrConflict {
		t.Fatalf("expected ErrConflict for non-assigned rider, got %v", err)
	}

	got, err := svc.Decline(ctx, DeclineCommand{OrderID: o.ID, Rider: first})
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != StatusPreparing {
		t.Fatalf("expected preparing after decline, got %s", got.Status)
	}
	if got.RiderID != nil {
		t.Fatalf("expected rider_id cleared, got %v", *got.RiderID)
	}
	if got.DeliveryCode != nil {
		t.Fatalf("expected delivery code cleared")
	}

	// The order is claimable again.
	second := types.Actor{ID: "r_decline_2", Role: types.RoleRider}
	claimed, err := svc.Claim(ctx, ClaimCommand{OrderID: o.ID, Rider: second})
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if claimed.RiderID == nil || *claimed.RiderID != second.ID {
		t.Fatalf("expected order assigned to second rider")
	}
}

func TestCustomerCancelWindow(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, nil, nil, nil, nil)

	customer := types.Actor{ID: "c_window", Role: types.RoleCustomer}

	o := mustCreateOrder(t, svc, customer.ID, "v_window")
	got, err := svc.Transition(ctx, TransitionCommand{OrderID: o.ID, Actor: customer, Target: StatusCancelled})
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	o2 := mustCreateOrder(t, svc, customer.ID, "v_window")
	mustTransition(t, svc, o2.ID, vendorActor("v_window"), StatusAccepted)
	if _, err := svc.Transition(ctx, TransitionCommand{OrderID: o2.ID, Actor: customer, Target: StatusCancelled}); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden after accept, got %v", err)
	}
}

func mustCreateOrder(t *testing.T, svc *Service, customerID, vendorID types.ID) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateCommand{
		CustomerID: customerID,
		VendorID:   vendorID,
		Amount:     2500,
		Currency:   "NGN",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func mustTransition(t *testing.T, svc *Service, id types.ID, actor types.Actor, target Status) {
	t.Helper()
	if _, err := svc.Transition(context.Background(), TransitionCommand{OrderID: id, Actor: actor, Target: target}); err != nil {
		t.Fatalf("transition to %s: %v", target, err)
	}
}

func vendorActor(id types.ID) types.Actor {
	return types.Actor{ID: id, Role: types.RoleVendor}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DISHPATCH_TEST_DSN")
	if dsn == "" {
		t.Skip("DISHPATCH_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_history, payments, orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "migrations", "0001_init.sql")
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
