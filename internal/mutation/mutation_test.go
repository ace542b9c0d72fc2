package mutation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"querycache/internal/invalidate"
	"querycache/internal/key"
	"querycache/internal/remote"
	"querycache/internal/store"
)

func newCoordinator() (*Coordinator, *store.Store) {
	s := store.New(nil)
	return New(s, invalidate.NewGraph(s), nil), s
}

func seedTeam(s *store.Store, k key.Key, name string) {
	s.Set(k, store.Entry{
		Status:     store.StatusSuccess,
		Data:       map[string]any{"name": name},
		FetchedAt:  time.Now(),
		StaleAfter: time.Minute,
	})
}

func renamePatch(name string) Patch {
	return func(_ key.Key, current store.Entry) store.Entry {
		data, _ := current.Data.(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		data["name"] = name
		current.Data = data
		return current
	}
}

func TestOptimisticPatchVisibleBeforeWriteResolves(t *testing.T) {
	coord, s := newCoordinator()
	k := key.New("teams", "t1")
	seedTeam(s, k, "Alpha")

	var duringWrite any
	write := func(context.Context) (any, error) {
		entry, _ := s.Get(k)
		duringWrite = entry.Data.(map[string]any)["name"]
		return "ok", nil
	}

	result, err := coord.Mutate(context.Background(), []key.Key{k}, renamePatch("Beta"), write, nil)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if result != "ok" {
		t.Fatalf("unexpected write result: %v", result)
	}
	if duringWrite != "Beta" {
		t.Fatalf("optimistic state not visible during write: %v", duringWrite)
	}
}

func TestFailedWriteRollsBackExactly(t *testing.T) {
	coord, s := newCoordinator()
	k := key.New("teams", "t1")
	seedTeam(s, k, "Alpha")
	before, _ := s.Get(k)

	write := func(context.Context) (any, error) {
		return nil, &remote.RemoteError{Code: 409, Message: "conflict"}
	}

	_, err := coord.Mutate(context.Background(), []key.Key{k}, renamePatch("Beta"), write, []key.Key{key.New("teams")})
	var remoteErr *remote.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Code != 409 {
		t.Fatalf("caller did not receive the rejection: %v", err)
	}

	after, ok := s.Get(k)
	if !ok {
		t.Fatalf("entry vanished after rollback")
	}
	if diff := cmp.Diff(before, after, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("rollback not exact (-before +after):\n%s", diff)
	}
	if after.Err != nil {
		t.Fatalf("rollback left a residual error flag: %v", after.Err)
	}

	// A failed mutation must not invalidate anything.
	list := key.New("teams")
	seedTeam(s, list, "unused")
	entry, _ := s.Get(list)
	if entry.FetchedAt.IsZero() {
		t.Fatalf("failed mutation invalidated dependents")
	}
}

func TestRollbackRestoresAbsence(t *testing.T) {
	coord, s := newCoordinator()
	k := key.New("teams", "new")

	write := func(context.Context) (any, error) { return nil, errors.New("rejected") }
	_, err := coord.Mutate(context.Background(), []key.Key{k}, renamePatch("Created"), write, nil)
	if err == nil {
		t.Fatalf("expected write rejection")
	}
	if _, ok := s.Get(k); ok {
		t.Fatalf("rollback kept an entry that did not exist before the mutation")
	}
}

func TestRollbackUnaffectedByConcurrentDataMutation(t *testing.T) {
	coord, s := newCoordinator()
	k := key.New("teams", "t1")
	seedTeam(s, k, "Alpha")

	// The write handler mutates the optimistic entry's map in place, as a
	// misbehaving subscriber might. The snapshot is a deep copy, so the
	// rollback is unaffected.
	write := func(context.Context) (any, error) {
		entry, _ := s.Get(k)
		entry.Data.(map[string]any)["name"] = "Corrupted"
		return nil, errors.New("rejected")
	}

	_, err := coord.Mutate(context.Background(), []key.Key{k}, renamePatch("Beta"), write, nil)
	if err == nil {
		t.Fatalf("expected write rejection")
	}
	after, _ := s.Get(k)
	if after.Data.(map[string]any)["name"] != "Alpha" {
		t.Fatalf("rollback served a corrupted snapshot: %v", after.Data)
	}
}

func TestSuccessInvalidatesPrefixClosure(t *testing.T) {
	coord, s := newCoordinator()
	target := key.New("teams", "t1")
	list := key.New("teams")
	other := key.New("users")
	seedTeam(s, target, "Alpha")
	seedTeam(s, list, "teams-list")
	seedTeam(s, other, "users-list")

	write := func(context.Context) (any, error) { return "ok", nil }
	_, err := coord.Mutate(context.Background(), []key.Key{target}, renamePatch("Beta"), write, []key.Key{list})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	listEntry, _ := s.Get(list)
	if !listEntry.FetchedAt.IsZero() {
		t.Fatalf("dependent list not marked stale")
	}
	targetEntry, _ := s.Get(target)
	if !targetEntry.FetchedAt.IsZero() {
		t.Fatalf("target under the invalidated prefix not marked stale")
	}
	otherEntry, _ := s.Get(other)
	if otherEntry.FetchedAt.IsZero() {
		t.Fatalf("unrelated key was invalidated")
	}
	if targetEntry.Data.(map[string]any)["name"] != "Beta" {
		t.Fatalf("optimistic data lost on success: %v", targetEntry.Data)
	}
}

func TestOverlappingMutationsSnapshotIntermediateState(t *testing.T) {
	coord, s := newCoordinator()
	k := key.New("teams", "t1")
	seedTeam(s, k, "Alpha")

	firstWriteStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	firstWrite := func(context.Context) (any, error) {
		close(firstWriteStarted)
		<-releaseFirst
		return "ok", nil
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := coord.Mutate(context.Background(), []key.Key{k}, renamePatch("Beta"), firstWrite, nil)
		firstDone <- err
	}()
	select {
	case <-firstWriteStarted:
	case <-time.After(2 * time.Second):
		t.Fatalf("first write never started")
	}

	// The second mutation snapshots the first's unconfirmed optimistic
	// state; its failure rolls back to that intermediate state, not to the
	// original. Documented tradeoff.
	secondWrite := func(context.Context) (any, error) { return nil, errors.New("rejected") }
	_, err := coord.Mutate(context.Background(), []key.Key{k}, renamePatch("Gamma"), secondWrite, nil)
	if err == nil {
		t.Fatalf("expected second write to fail")
	}

	entry, _ := s.Get(k)
	if entry.Data.(map[string]any)["name"] != "Beta" {
		t.Fatalf("expected rollback to intermediate optimistic state, got %v", entry.Data)
	}

	close(releaseFirst)
	if err := <-firstDone; err != nil {
		t.Fatalf("first mutation failed: %v", err)
	}
}
