package syncx

import (
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestSnapshotLoadStore(t *testing.T) {
	s := NewSnapshot(42)
	if got := s.Load(); got != 42 {
		t.Errorf("Load() = %d, want 42", got)
	}
	s.Store(100)
	if got := s.Load(); got != 100 {
		t.Errorf("Load() after Store = %d, want 100", got)
	}
}

func TestSnapshotZeroValue(t *testing.T) {
	var s Snapshot[string]
	if got := s.Load(); got != "" {
		t.Errorf("zero Load() = %q", got)
	}
	if old := s.Swap("a"); old != "" {
		t.Errorf("zero Swap() = %q", old)
	}
}

func TestSnapshotSwap(t *testing.T) {
	s := NewSnapshot("hello")
	if old := s.Swap("world"); old != "hello" {
		t.Errorf("Swap returned %q, want hello", old)
	}
	if got := s.Load(); got != "world" {
		t.Errorf("Load() = %q, want world", got)
	}
}

func TestSnapshotUpdate(t *testing.T) {
	s := NewSnapshot([]string{"a", "b"})
	before := s.Load()

	err := s.Update(func(v []string) ([]string, error) {
		return append(slices.Clone(v), "c"), nil
	})
	if err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if got := s.Load(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Load() = %v", got)
	}
	if !slices.Equal(before, []string{"a", "b"}) {
		t.Errorf("earlier snapshot changed: %v", before)
	}

	boom := errors.New("duplicate")
	if err := s.Update(func(v []string) ([]string, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Update() = %v, want boom", err)
	}
	if got := s.Load(); len(got) != 3 {
		t.Errorf("failed Update changed value: %v", got)
	}
}

func TestSnapshotConcurrentUpdate(t *testing.T) {
	s := NewSnapshot(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Update(func(v int) (int, error) { return v + 1, nil })
		}()
		go func() {
			defer wg.Done()
			_ = s.Load()
		}()
	}
	wg.Wait()
	if got := s.Load(); got != 100 {
		t.Errorf("Load() = %d, want 100", got)
	}
}
