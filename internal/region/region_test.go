package region

import (
	"image"
	"slices"
	"testing"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

func TestNormalize(t *testing.T) {
	r := Region{Name: "a", X1: 50, Y1: 40, X2: 10, Y2: 20, ColorThreshold: -4}.Normalize()
	if r.X1 != 10 || r.X2 != 50 || r.Y1 != 20 || r.Y2 != 40 {
		t.Errorf("bounds = %v", r.Rect())
	}
	if r.ColorThreshold != 0 {
		t.Errorf("threshold = %d, want 0", r.ColorThreshold)
	}
	if r.Rect() != image.Rect(10, 20, 50, 40) {
		t.Errorf("Rect() = %v", r.Rect())
	}
}

func TestNewSetRejects(t *testing.T) {
	tests := []struct {
		name string
		rs   []Region
	}{
		{"empty name", []Region{{X2: 1, Y2: 1}}},
		{"zero width", []Region{{Name: "a", X1: 5, X2: 5, Y2: 1}}},
		{"duplicate", []Region{{Name: "a", X2: 1, Y2: 1}, {Name: "a", X2: 2, Y2: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSet(tt.rs...)
			if !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
				t.Errorf("NewSet() = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func mustSet(t *testing.T, names ...string) Set {
	t.Helper()
	rs := make([]Region, len(names))
	for i, n := range names {
		rs[i] = Region{Name: n, X1: i, Y1: 0, X2: i + 10, Y2: 10}
	}
	s, err := NewSet(rs...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSetWithReplacesInPlace(t *testing.T) {
	s := mustSet(t, "a", "b", "c")
	next, err := s.With(Region{Name: "b", X1: 100, Y1: 100, X2: 0, Y2: 0})
	if err != nil {
		t.Fatal(err)
	}
	if got := next.Names(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Names() = %v", got)
	}
	if r, _ := next.Get("b"); r.X2 != 100 {
		t.Errorf("b not replaced: %+v", r)
	}
	if r, _ := s.Get("b"); r.X2 != 11 {
		t.Errorf("original set mutated: %+v", r)
	}

	next, _ = next.With(Region{Name: "d", X2: 1, Y2: 1})
	if next.Len() != 4 {
		t.Errorf("Len() = %d, want 4", next.Len())
	}
}

func TestSetWithout(t *testing.T) {
	s := mustSet(t, "a", "b")
	next, ok := s.Without("a")
	if !ok || !slices.Equal(next.Names(), []string{"b"}) {
		t.Errorf("Without(a) = %v, %v", next.Names(), ok)
	}
	if _, ok := s.Without("zzz"); ok {
		t.Error("Without(missing) should report false")
	}
	if s.Len() != 2 {
		t.Error("original set mutated")
	}
}

func TestSetReorder(t *testing.T) {
	s := mustSet(t, "a", "b", "c")
	next, err := s.Reorder([]string{"c", "a", "b"})
	if err != nil || !slices.Equal(next.Names(), []string{"c", "a", "b"}) {
		t.Errorf("Reorder() = %v, %v", next.Names(), err)
	}
	for _, bad := range [][]string{{"a", "b"}, {"a", "a", "b"}, {"a", "b", "x"}} {
		if _, err := s.Reorder(bad); err == nil {
			t.Errorf("Reorder(%v) should fail", bad)
		}
	}
}

func TestTrackedExcludesReserved(t *testing.T) {
	s := mustSet(t, "a", ReservedName, "b")
	if got := s.Names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v", got)
	}
	if got := s.Tracked(); len(got) != 2 || got[1].Name != "b" {
		t.Errorf("Tracked() = %v", got)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d", s.Len())
	}
}
