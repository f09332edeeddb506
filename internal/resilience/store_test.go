package resilience

import (
	"os"
	"testing"
)

func TestStoreLoadMissingFile(t *testing.T) {
	state, err := NewStore(t.TempDir()).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Version != StateVersion || len(state.Platforms) != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestStoreRoundTripsPlatforms(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.Update(func(s *State) error {
		s.Platform("todoist").CircuitBreaker.Failures = 2
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, _ := store.Load()
	if got := state.Platform("todoist").CircuitBreaker.Failures; got != 2 {
		t.Errorf("expected 2 failures, got %d", got)
	}
}

func TestStoreIgnoresCorruptOrOldState(t *testing.T) {
	for _, content := range []string{`{not json`, `{"version": 1, "circuit_breaker": {"state": "open"}}`} {
		store := NewStore(t.TempDir())
		if err := os.WriteFile(store.Path(), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		state, err := store.Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !state.Platform("clickup").CircuitBreaker.IsClosed() {
			t.Errorf("expected fresh state for %q", content)
		}
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Save(NewState())
	if err := store.Clear(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Errorf("expected state file removed, got %v", err)
	}
}
