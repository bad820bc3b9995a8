package reactive

import (
	"errors"
	"testing"
)

func TestCellGetSet(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 1)

	if got := c.Get(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	c.Set(2)
	if got := c.Get(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	c.Update(func(n int) int { return n * 10 })
	if got := c.Peek(); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
}

func TestCellVersionAdvancesOnlyOnChange(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, "a")

	c.Set("a")
	if v := c.Version(); v != 0 {
		t.Errorf("same-value write bumped version to %d", v)
	}
	c.Set("b")
	c.Set("c")
	if v := c.Version(); v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}
}

func TestCellWithEquals(t *testing.T) {
	rt := NewRuntime()
	type user struct {
		ID   int
		Name string
	}
	c := NewCell(rt, user{ID: 1, Name: "a"}, WithEquals(func(a, b user) bool {
		return a.ID == b.ID
	}))

	runs := 0
	rt.CreateEffect(func() Cleanup {
		_ = c.Get()
		runs++
		return nil
	})

	c.Set(user{ID: 1, Name: "renamed"})
	if runs != 1 {
		t.Errorf("equal write re-ran effect, runs = %d", runs)
	}
	if c.Peek().Name != "a" {
		t.Errorf("equal write replaced value: %+v", c.Peek())
	}

	c.Set(user{ID: 2})
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
}

func TestCellDisposedIgnoresWrites(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 1)
	runs := 0
	rt.CreateEffect(func() Cleanup {
		_ = c.Get()
		runs++
		return nil
	})

	c.Dispose()
	if !c.IsDisposed() {
		t.Fatal("expected cell to be disposed")
	}
	c.Set(5)
	if c.Peek() != 1 {
		t.Errorf("write to disposed cell took effect: %d", c.Peek())
	}
	if runs != 1 {
		t.Errorf("write to disposed cell re-ran effect, runs = %d", runs)
	}
	if s := rt.Stats(); s.Nodes != 1 {
		t.Errorf("expected only the effect to remain, got %d nodes", s.Nodes)
	}
}

func TestDefaultEquals(t *testing.T) {
	p1, p2 := new(int), new(int)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"same int", 1, 1, true},
		{"different int", 1, 2, false},
		{"int vs string", 1, "1", false},
		{"string vs int", "1", 1, false},
		{"both nil", nil, nil, true},
		{"nil vs value", nil, 0, false},
		{"same pointer", p1, p1, true},
		{"distinct pointers", p1, p2, false},
		{"equal slices", []int{1, 2}, []int{1, 2}, true},
		{"different slices", []int{1, 2}, []int{2, 1}, false},
		{"equal maps", map[string]int{"a": 1}, map[string]int{"a": 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := defaultEquals[any](tt.a, tt.b); got != tt.want {
				t.Errorf("defaultEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCellSetInsideOwnDerivedPanics(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 1)
	d := NewDerived(rt, func() int {
		v := c.Get()
		c.Set(v + 1)
		return v
	})

	err := catchPanic(func() { d.Get() })
	if !errors.Is(err, ErrWriteInDerived) {
		t.Fatalf("expected ErrWriteInDerived, got %v", err)
	}
	var ue *UsageError
	if !errors.As(err, &ue) || ue.Code != "R002" {
		t.Errorf("expected usage error R002, got %v", err)
	}
	if c.Peek() != 1 {
		t.Errorf("rejected write changed the cell: %d", c.Peek())
	}
}

func TestCellSetInsideDerivedOfOtherCell(t *testing.T) {
	rt := NewRuntime()
	src := NewCell(rt, 2)
	sink := NewCell(rt, 0)
	d := NewDerived(rt, func() int {
		v := src.Get() * 2
		sink.Set(v)
		return v
	})

	if got := d.Get(); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	if sink.Peek() != 4 {
		t.Errorf("expected sink 4, got %d", sink.Peek())
	}
}

// catchPanic runs fn and returns the recovered panic as an error.
func catchPanic(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = e
			return
		}
		err = errors.New("non-error panic")
	}()
	fn()
	return nil
}
