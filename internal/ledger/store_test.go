package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewStore(repo, nil)
}

func receiveSnapshot(t *testing.T, sub *Subscription) core.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestCreateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	draft := core.Draft{
		Amount:      core.Money{Cents: 50000},
		Category:    core.CategoryOther,
		CustomLabel: "Chai",
		Notes:       "roadside",
		OccurredOn:  core.NewDate(2025, 3, 10),
	}
	id, err := store.Create(ctx, "u1", draft)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned id")
	}

	snap, err := store.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snap))
	}
	got := snap[0]
	if got.ID != id || got.Amount.Cents != 50000 || got.Notes != "roadside" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Category != "Chai" {
		t.Fatalf("expected resolved custom label, got %q", got.Category)
	}
	if !got.OccurredOn.Equal(draft.OccurredOn.Time) {
		t.Fatalf("occurred_on mismatch: %v", got.OccurredOn)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not assigned")
	}
}

func TestCreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Zero amount: validation error and no write issued.
	_, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 0},
		Category:   core.CategoryFood,
		OccurredOn: core.NewDate(2025, 3, 1),
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	snap, err := store.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("rejected draft must not be written, got %d records", len(snap))
	}
}

func TestOperationsRequireUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "", core.Draft{}); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("create: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := store.Update(ctx, "", "id", core.Patch{}); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("update: expected ErrNotAuthenticated, got %v", err)
	}
	if err := store.Delete(ctx, "", "id", true); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("delete: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := store.Subscribe(ctx, ""); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("subscribe: expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := store.Snapshot(ctx, ""); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Fatalf("snapshot: expected ErrNotAuthenticated, got %v", err)
	}
}

func TestUpdatePatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 500},
		Category:   core.CategoryFood,
		Notes:      "before",
		OccurredOn: core.NewDate(2025, 3, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bad := core.Money{Cents: -1}
	if _, err := store.Update(ctx, "u1", id, core.Patch{Amount: &bad}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	amount := core.Money{Cents: 900}
	updated, err := store.Update(ctx, "u1", id, core.Patch{Amount: &amount})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Amount.Cents != 900 || updated.Notes != "before" {
		t.Fatalf("partial merge wrong: %+v", updated)
	}

	if _, err := store.Update(ctx, "u1", "missing", core.Patch{Amount: &amount}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteConfirmationGate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 500},
		Category:   core.CategoryFood,
		OccurredOn: core.NewDate(2025, 3, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Delete(ctx, "u1", id, false); !errors.Is(err, core.ErrDeleteNotConfirmed) {
		t.Fatalf("expected ErrDeleteNotConfirmed, got %v", err)
	}
	// The gate fired first: nothing was deleted.
	snap, _ := store.Snapshot(ctx, "u1")
	if len(snap) != 1 {
		t.Fatalf("unconfirmed delete must not remove records")
	}

	if err := store.Delete(ctx, "u1", id, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestDeleteNonexistentLeavesLedgerUnchanged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 500},
		Category:   core.CategoryFood,
		OccurredOn: core.NewDate(2025, 3, 1),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Delete(ctx, "u1", "no-such-id", true); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	snap, err := store.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("failed delete must leave ledger unchanged, got %d records", len(snap))
	}
}

func TestSubscriptionDeliversSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Initial snapshot arrives immediately, even when empty.
	if snap := receiveSnapshot(t, sub); len(snap) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d records", len(snap))
	}

	if _, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 500},
		Category:   core.CategoryFood,
		OccurredOn: core.NewDate(2025, 3, 1),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap := receiveSnapshot(t, sub)
	if len(snap) != 1 || snap[0].Category != core.CategoryFood {
		t.Fatalf("expected snapshot with created record, got %+v", snap)
	}

	// A second rapid mutation conflates: the latest snapshot wins.
	if _, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 200},
		Category:   core.CategoryBills,
		OccurredOn: core.NewDate(2025, 3, 2),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, "u1", core.Draft{
		Amount:     core.Money{Cents: 300},
		Category:   core.CategoryTransport,
		OccurredOn: core.NewDate(2025, 3, 3),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	snap = receiveSnapshot(t, sub)
	if len(snap) != 3 {
		t.Fatalf("expected conflated latest snapshot with 3 records, got %d", len(snap))
	}
}

func TestSubscriptionScopedToUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	receiveSnapshot(t, sub) // drain initial

	if _, err := store.Create(ctx, "u2", core.Draft{
		Amount:     core.Money{Cents: 500},
		Category:   core.CategoryFood,
		OccurredOn: core.NewDate(2025, 3, 1),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case snap := <-sub.Snapshots():
		t.Fatalf("u1 must not see u2 changes, got %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	receiveSnapshot(t, sub)
	sub.Close()
	sub.Close() // idempotent

	if users := store.ActiveUsers(); len(users) != 0 {
		t.Fatalf("expected no active users after close, got %v", users)
	}
}

func TestDoneUnblocksConsumerAfterClose(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	receiveSnapshot(t, sub)

	// A consumer loop selecting on Done must terminate once the
	// subscription is closed, even with no snapshot in flight.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-sub.Snapshots():
			case <-sub.Done():
				return
			}
		}
	}()

	sub.Close()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer loop did not terminate after Close")
	}

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done channel not closed after Close")
	}
}

func TestNotifySyncError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	store.NotifySyncError(errors.New("broker unreachable"))

	select {
	case err := <-sub.Errs():
		if !errors.Is(err, core.ErrSyncUnavailable) {
			t.Fatalf("expected ErrSyncUnavailable, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sync error was not surfaced")
	}
}
