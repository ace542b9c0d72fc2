package invalidate

import (
	"sort"
	"testing"
	"time"

	"querycache/internal/key"
	"querycache/internal/store"
)

func seed(s *store.Store, keys ...key.Key) {
	for _, k := range keys {
		s.Set(k, store.Entry{Status: store.StatusSuccess, Data: k.String(), FetchedAt: time.Now(), StaleAfter: time.Hour})
	}
}

func staleSet(s *store.Store) []string {
	matches := s.EntriesMatching(func(_ key.Key, entry store.Entry) bool {
		return entry.FetchedAt.IsZero()
	})
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Key.String())
	}
	sort.Strings(out)
	return out
}

func TestInvalidateCascadesToPrefixMatchesOnly(t *testing.T) {
	s := store.New(nil)
	seed(s,
		key.New("x", "1"),
		key.New("x", "2"),
		key.New("x", "list", "filterA"),
		key.New("y"),
	)

	graph := NewGraph(s)
	affected := graph.Invalidate(key.New("x"))
	if len(affected) != 3 {
		t.Fatalf("expected 3 affected keys, got %d", len(affected))
	}

	stale := staleSet(s)
	want := []string{`x/1`, `x/2`, `x/list/filterA`}
	if len(stale) != len(want) {
		t.Fatalf("stale set %v, want %v", stale, want)
	}
	for i := range want {
		if stale[i] != want[i] {
			t.Fatalf("stale set %v, want %v", stale, want)
		}
	}
}

func TestInvalidateMatchesSelf(t *testing.T) {
	s := store.New(nil)
	seed(s, key.New("teams"), key.New("teams", "t1"))

	graph := NewGraph(s)
	affected := graph.Invalidate(key.New("teams", "t1"))
	if len(affected) != 1 || affected[0].String() != "teams/t1" {
		t.Fatalf("expected only the exact key, got %v", affected)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	s := store.New(nil)
	seed(s, key.New("x", "1"), key.New("x", "2"), key.New("y"))

	graph := NewGraph(s)
	graph.Invalidate(key.New("x"))
	first := staleSet(s)
	graph.Invalidate(key.New("x"))
	second := staleSet(s)

	if len(first) != len(second) {
		t.Fatalf("idempotence broken: %v then %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("idempotence broken: %v then %v", first, second)
		}
	}
}

func TestClosureDoesNotCoverLaterKeys(t *testing.T) {
	s := store.New(nil)
	seed(s, key.New("x", "1"))

	graph := NewGraph(s)
	closure := graph.Closure(key.New("x"))
	seed(s, key.New("x", "2"))
	if len(closure) != 1 {
		t.Fatalf("closure observed a key created after the call: %v", closure)
	}
}

func TestInvalidateNoTargets(t *testing.T) {
	s := store.New(nil)
	seed(s, key.New("x"))
	graph := NewGraph(s)
	if affected := graph.Invalidate(); affected != nil {
		t.Fatalf("expected nil for no targets, got %v", affected)
	}
}
