// Package ledger is the single source of truth for one user's expenses.
// Mutations go through the authoritative store; readers subscribe to a feed
// of complete snapshots that replaces their view wholesale on every change.
// There is no local diffing or merging: last write wins at the store.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"kharcha/internal/core"
	"kharcha/internal/feed"
	"kharcha/internal/storage"
)

type Store struct {
	repo *storage.Repository
	feed *feed.Client // nil when running without a broker

	mu     sync.Mutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
}

// NewStore wires the ledger to its authoritative repository and an optional
// change feed for cross-process notifications.
func NewStore(repo *storage.Repository, feedClient *feed.Client) *Store {
	return &Store{
		repo: repo,
		feed: feedClient,
		subs: make(map[string]map[uint64]*Subscription),
	}
}

// Snapshot reads the user's complete ledger once, in snapshot order.
func (s *Store) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}
	return s.repo.ListExpenses(ctx, userID)
}

// Create validates the draft and submits a new record. The storage layer
// assigns the id and created_at; the resolved category is what gets stored,
// never the literal Other when a custom label was given.
func (s *Store) Create(ctx context.Context, userID string, d core.Draft) (string, error) {
	if userID == "" {
		return "", core.ErrNotAuthenticated
	}
	if err := d.Validate(); err != nil {
		return "", err
	}

	category := core.ResolveCategory(d.Category, d.CustomLabel)
	e, err := s.repo.InsertExpense(ctx, userID, category, d)
	if err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}

	s.afterMutation(ctx, userID)
	return e.ID, nil
}

// Update merges the patch onto an existing record. Missing ids surface
// core.ErrNotFound, usually a stale read racing a remote deletion.
func (s *Store) Update(ctx context.Context, userID, id string, p core.Patch) (core.Expense, error) {
	if userID == "" {
		return core.Expense{}, core.ErrNotAuthenticated
	}
	if err := p.Validate(); err != nil {
		return core.Expense{}, err
	}

	e, err := s.repo.UpdateExpense(ctx, userID, id, p)
	if err != nil {
		return core.Expense{}, err
	}

	s.afterMutation(ctx, userID)
	return e, nil
}

// Delete removes a record. The confirmed flag is the caller's explicit
// user-confirmation gate; the request is never issued without it.
func (s *Store) Delete(ctx context.Context, userID, id string, confirmed bool) error {
	if userID == "" {
		return core.ErrNotAuthenticated
	}
	if !confirmed {
		return core.ErrDeleteNotConfirmed
	}

	if err := s.repo.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}

	s.afterMutation(ctx, userID)
	return nil
}

// Subscribe opens a snapshot feed for the user. The current snapshot is
// delivered immediately; every subsequent change delivers a fresh complete
// snapshot. Delivery conflates: a slow consumer skips intermediate states
// but always lands on the latest one.
func (s *Store) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, core.ErrNotAuthenticated
	}

	snap, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	s.mu.Lock()
	s.nextID++
	sub := &Subscription{
		store:  s,
		userID: userID,
		id:     s.nextID,
		snaps:  make(chan core.Snapshot, 1),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[uint64]*Subscription)
	}
	s.subs[userID][sub.id] = sub
	s.mu.Unlock()

	sub.push(snap)
	slog.DebugContext(ctx, "Ledger subscription opened", "subscription_id", sub.id)
	return sub, nil
}

// Refresh reloads the user's snapshot from the authoritative store and
// rebroadcasts it to that user's subscribers. The feed worker calls this
// when a change message arrives from another process.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	s.mu.Lock()
	n := len(s.subs[userID])
	s.mu.Unlock()
	if n == 0 {
		return nil
	}

	snap, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}
	s.broadcast(userID, snap)
	return nil
}

// ActiveUsers lists users with at least one open subscription.
func (s *Store) ActiveUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.subs))
	for userID, subs := range s.subs {
		if len(subs) > 0 {
			users = append(users, userID)
		}
	}
	return users
}

// NotifySyncError surfaces a synchronization failure to every subscriber.
// A silently stale ledger would corrupt all derived aggregates, so the
// error is pushed rather than swallowed.
func (s *Store) NotifySyncError(err error) {
	wrapped := fmt.Errorf("%w: %v", core.ErrSyncUnavailable, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.pushErr(wrapped)
		}
	}
}

func (s *Store) broadcast(userID string, snap core.Snapshot) {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs[userID]))
	for _, sub := range s.subs[userID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.push(snap)
	}
}

// afterMutation publishes the change to other processes and refreshes local
// subscribers. Neither step fails the mutation: the write is already
// acknowledged and the periodic refresh backstop covers lost messages.
func (s *Store) afterMutation(ctx context.Context, userID string) {
	if s.feed != nil {
		if err := s.feed.PublishChange(ctx, userID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ledger change", "error", err)
		}
	} else {
		slog.DebugContext(ctx, "Change feed not available, skipping publish")
	}

	if err := s.Refresh(ctx, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to refresh subscribers", "error", err)
		s.NotifySyncError(err)
	}
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs, ok := s.subs[sub.userID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(s.subs, sub.userID)
		}
	}
}

// Subscription is a live, cancellable snapshot feed for one user.
type Subscription struct {
	store     *Store
	userID    string
	id        uint64
	snaps     chan core.Snapshot
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// Snapshots delivers complete, immutable-at-read snapshots. Consumers must
// not mutate the delivered slice. The channel is never closed: receive from
// it in a select alongside Done(), which signals that no further snapshots
// will arrive.
func (s *Subscription) Snapshots() <-chan core.Snapshot {
	return s.snaps
}

// Errs surfaces synchronization failures (wrapped core.ErrSyncUnavailable).
func (s *Subscription) Errs() <-chan error {
	return s.errs
}

// Done is closed when the subscription is released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close releases the subscription and closes Done. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.store.unsubscribe(s)
		close(s.done)
	})
}

// push replaces any undelivered snapshot with the newer one. A closed
// subscription discards the snapshot instead of delivering it.
func (s *Subscription) push(snap core.Snapshot) {
	for {
		select {
		case <-s.done:
			return
		case s.snaps <- snap:
			return
		default:
			select {
			case <-s.snaps:
			default:
			}
		}
	}
}

func (s *Subscription) pushErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
