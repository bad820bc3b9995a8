package reactive

import (
	"errors"
	"reflect"
	"testing"
)

func TestCreateRootDisposeStopsEffects(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 0)
	runs := 0

	root, err := CreateRoot(rt, func(dispose func() error) *Effect {
		return rt.CreateEffect(func() Cleanup {
			_ = c.Get()
			runs++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}

	c.Set(1)
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}
	if err := root.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	c.Set(2)
	if runs != 2 {
		t.Errorf("effect ran after root disposal, runs = %d", runs)
	}
	if !root.Value.IsDisposed() {
		t.Error("expected the root's effect to be disposed")
	}
	if !root.Owner().IsDisposed() {
		t.Error("expected the root owner to be disposed")
	}
}

func TestOwnerDisposalOrder(t *testing.T) {
	rt := NewRuntime()
	var order []string
	rec := func(s string) func() { return func() { order = append(order, s) } }

	root, _ := CreateRoot(rt, func(dispose func() error) struct{} {
		rt.OnCleanup(rec("root-1"))
		first := rt.NewOwner()
		_ = rt.RunWithOwner(first, func() {
			rt.OnCleanup(rec("first"))
			grandchild := rt.NewOwner()
			_ = rt.RunWithOwner(grandchild, func() { rt.OnCleanup(rec("grandchild")) })
		})
		second := rt.NewOwner()
		_ = rt.RunWithOwner(second, func() { rt.OnCleanup(rec("second")) })
		rt.CreateEffect(func() Cleanup { return rec("effect") })
		rt.OnCleanup(rec("root-2"))
		return struct{}{}
	})

	if err := root.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	want := []string{"second", "grandchild", "first", "effect", "root-2", "root-1"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
	if s := rt.Stats(); s.Nodes != 0 || s.Owners != 0 {
		t.Errorf("arena not empty after disposal: %+v", s)
	}
}

func TestOwnerDisposeIdempotentAndReentrant(t *testing.T) {
	rt := NewRuntime()
	calls := 0
	root, _ := CreateRoot(rt, func(dispose func() error) struct{} {
		rt.OnCleanup(func() {
			calls++
			if err := dispose(); err != nil {
				t.Errorf("reentrant dispose: %v", err)
			}
		})
		return struct{}{}
	})

	if err := root.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := root.Dispose(); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
	if calls != 1 {
		t.Errorf("cleanup ran %d times", calls)
	}
}

func TestOwnerCleanupFailuresAreIsolated(t *testing.T) {
	rt := NewRuntime()
	var order []string
	boom := errors.New("boom")
	root, _ := CreateRoot(rt, func(dispose func() error) struct{} {
		rt.OnCleanup(func() { order = append(order, "a") })
		rt.OnCleanup(func() { panic(boom) })
		rt.OnCleanup(func() { order = append(order, "c") })
		return struct{}{}
	})

	err := root.Dispose()
	if !errors.Is(err, boom) {
		t.Fatalf("expected cleanup error wrapping boom, got %v", err)
	}
	var ce *CleanupError
	if !errors.As(err, &ce) {
		t.Errorf("expected *CleanupError, got %T", err)
	}
	if want := []string{"c", "a"}; !reflect.DeepEqual(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestOwnerCleanupOnDisposingOwnerRunsImmediately(t *testing.T) {
	rt := NewRuntime()
	late := 0
	root, _ := CreateRoot(rt, func(dispose func() error) *Owner {
		owner := rt.CurrentOwner()
		rt.OnCleanup(func() {
			owner.OnCleanup(func() { late++ })
		})
		return owner
	})

	_ = root.Dispose()
	if late != 1 {
		t.Errorf("cleanup registered during disposal ran %d times", late)
	}
	root.Value.OnCleanup(func() { late++ })
	if late != 1 {
		t.Errorf("cleanup on disposed owner should be dropped, got %d", late)
	}
}

func TestRunWithDisposedOwner(t *testing.T) {
	rt := NewRuntime()
	o := rt.NewOwner()
	_ = o.Dispose()

	called := false
	err := rt.RunWithOwner(o, func() { called = true })
	if !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
	if called {
		t.Error("fn ran on disposed owner")
	}
}

func TestOwnerParent(t *testing.T) {
	rt := NewRuntime()
	root, _ := CreateRoot(rt, func(dispose func() error) [2]*Owner {
		parent := rt.CurrentOwner()
		child := rt.NewOwner()
		return [2]*Owner{parent, child}
	})
	parent, child := root.Value[0], root.Value[1]

	if got := child.Parent(); got == nil || got.ID() != parent.ID() {
		t.Errorf("expected parent %d, got %v", parent.ID(), got)
	}
	if parent.Parent() != nil {
		t.Error("root owner should be detached")
	}
	_ = child.Dispose()
	if !child.IsDisposed() || parent.IsDisposed() {
		t.Error("disposing a child must not dispose its parent")
	}
}

func TestOnMountRunsAfterEffects(t *testing.T) {
	rt := NewRuntime()
	var log []string
	root, err := CreateRoot(rt, func(dispose func() error) struct{} {
		rt.OnMount(func() Cleanup {
			log = append(log, "mount")
			if rt.Tracking() {
				t.Error("mount callback must run untracked")
			}
			return func() { log = append(log, "unmount") }
		})
		rt.CreateEffect(func() Cleanup {
			log = append(log, "effect")
			return nil
		})
		log = append(log, "body")
		return struct{}{}
	})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if want := []string{"effect", "body", "mount"}; !reflect.DeepEqual(log, want) {
		t.Fatalf("expected %v, got %v", want, log)
	}

	_ = root.Dispose()
	if log[len(log)-1] != "unmount" {
		t.Errorf("mount cleanup did not run on disposal: %v", log)
	}
}

func TestOnMountSkippedForDisposedOwner(t *testing.T) {
	rt := NewRuntime()
	mounted := false
	err := rt.Batch(func() {
		o := rt.NewOwner()
		_ = rt.RunWithOwner(o, func() {
			rt.OnMount(func() Cleanup {
				mounted = true
				return nil
			})
		})
		_ = o.Dispose()
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if mounted {
		t.Error("mount callback ran for a disposed owner")
	}
}

func TestOnMountOutsideBatchRunsImmediately(t *testing.T) {
	rt := NewRuntime()
	mounted := false
	rt.OnMount(func() Cleanup {
		mounted = true
		return nil
	})
	if !mounted {
		t.Error("idle runtime should settle mount callbacks right away")
	}
}

func TestOnDestroyOutlivesEffectReruns(t *testing.T) {
	rt := NewRuntime()
	c := NewCell(rt, 0)
	destroyed := 0
	root, _ := CreateRoot(rt, func(dispose func() error) struct{} {
		rt.OnDestroy(func() { destroyed++ })
		rt.CreateEffect(func() Cleanup {
			_ = c.Get()
			return nil
		})
		return struct{}{}
	})

	c.Set(1)
	c.Set(2)
	if destroyed != 0 {
		t.Fatalf("owner cleanup ran on effect re-run: %d", destroyed)
	}
	_ = root.Dispose()
	if destroyed != 1 {
		t.Errorf("expected 1 destroy call, got %d", destroyed)
	}
}

func TestContextLookup(t *testing.T) {
	rt := NewRuntime()
	theme := NewContext("light")
	var seen []string

	if got := theme.Use(rt); got != "light" {
		t.Errorf("expected default outside owners, got %q", got)
	}

	_, _ = CreateRoot(rt, func(dispose func() error) struct{} {
		theme.Provide(rt, "dark")
		rt.CreateEffect(func() Cleanup {
			seen = append(seen, theme.Use(rt))
			return nil
		})
		inner := rt.NewOwner()
		_ = rt.RunWithOwner(inner, func() {
			theme.Provide(rt, "contrast")
			seen = append(seen, theme.Use(rt))
		})
		seen = append(seen, theme.Use(rt))
		return struct{}{}
	})

	if want := []string{"dark", "contrast", "dark"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestOnCleanupWithoutOwnerIsDropped(t *testing.T) {
	rt := NewRuntime()
	called := false
	rt.OnCleanup(func() { called = true })
	rt.OnDestroy(func() { called = true })
	if called {
		t.Error("cleanup without owner must not run")
	}
}

func TestTryWithOwnerRecoversPanic(t *testing.T) {
	rt := NewRuntime()
	boom := errors.New("boom")
	o := rt.NewOwner()
	cleaned := false
	ran := false

	err := rt.TryWithOwner(o, func() {
		rt.OnCleanup(func() { cleaned = true })
		rt.CreateEffect(func() Cleanup {
			ran = true
			return nil
		})
		panic(boom)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var re *RunError
	if !errors.As(err, &re) || re.Kind != "scope" {
		t.Errorf("expected scope *RunError, got %#v", err)
	}
	if !ran {
		t.Error("effect created before the panic did not run")
	}
	if rt.Tracking() || rt.CurrentOwner() != nil {
		t.Error("execution context leaked after recovered panic")
	}

	if err := rt.TryWithOwner(o, func() {}); err != nil {
		t.Errorf("clean run: %v", err)
	}
	_ = o.Dispose()
	if !cleaned {
		t.Error("cleanup registered before the panic was lost")
	}
}
