package reactive

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestAsyncEffectTracksOnlyBeforeSuspension(t *testing.T) {
	rt := NewRuntime()
	before := NewCell(rt, 0)
	after := NewCell(rt, 0)
	var log []string

	root, err := CreateRoot(rt, func(dispose func() error) *Effect {
		return rt.CreateAsyncEffect(func(ctx context.Context) Continuation {
			b := before.Get()
			log = append(log, "sync")
			return func() Cleanup {
				_ = after.Get()
				log = append(log, "resume")
				_ = b
				return nil
			}
		})
	})
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	if want := []string{"sync", "resume"}; !reflect.DeepEqual(log, want) {
		t.Fatalf("expected %v, got %v", want, log)
	}

	after.Set(1)
	if len(log) != 2 {
		t.Errorf("read after suspension registered a dependency: %v", log)
	}

	before.Set(1)
	if want := []string{"sync", "resume", "sync", "resume"}; !reflect.DeepEqual(log, want) {
		t.Errorf("expected %v, got %v", want, log)
	}
	_ = root.Dispose()
}

func TestAsyncEffectContextCancelledOnRerun(t *testing.T) {
	rt := NewRuntime()
	trigger := NewCell(rt, 0)
	var ctxs []context.Context

	e := rt.CreateAsyncEffect(func(ctx context.Context) Continuation {
		_ = trigger.Get()
		ctxs = append(ctxs, ctx)
		return nil
	})

	if ctxs[0].Err() != nil {
		t.Fatal("context cancelled before re-run")
	}
	trigger.Set(1)
	if ctxs[0].Err() == nil {
		t.Error("previous run's context not cancelled on re-run")
	}
	if ctxs[1].Err() != nil {
		t.Error("current run's context cancelled")
	}
	_ = e.Dispose()
	if ctxs[1].Err() == nil {
		t.Error("context not cancelled on dispose")
	}
}

func TestAsyncEffectStaleContinuationSkipped(t *testing.T) {
	rt := NewRuntime()
	trigger := NewCell(rt, 0)
	var resumed []int

	_ = rt.Batch(func() {
		rt.CreateAsyncEffect(func(ctx context.Context) Continuation {
			v := trigger.Get()
			return func() Cleanup {
				resumed = append(resumed, v)
				return nil
			}
		})
		// Re-run before the first continuation had a chance to run.
		trigger.Set(1)
	})

	if want := []int{1}; !reflect.DeepEqual(resumed, want) {
		t.Errorf("expected only the latest continuation, got %v", resumed)
	}
}

func TestAsyncEffectWithPost(t *testing.T) {
	rt := NewRuntime()
	query := NewCell(rt, "a")
	result := NewCell(rt, "")
	var wg sync.WaitGroup

	rt.CreateAsyncEffect(func(ctx context.Context) Continuation {
		q := query.Get()
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			rt.Post(func() { result.Set("result:" + q) })
		}()
		return nil
	})

	wg.Wait()
	if err := rt.Drain(); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := result.Peek(); got != "result:a" {
		t.Errorf("expected result:a, got %q", got)
	}
}

func TestQueueMicrotaskRunsAfterMounts(t *testing.T) {
	rt := NewRuntime()
	var log []string
	_ = rt.Batch(func() {
		rt.QueueMicrotask(func() { log = append(log, "micro") })
		rt.OnMount(func() Cleanup {
			log = append(log, "mount")
			return nil
		})
		log = append(log, "body")
	})
	if want := []string{"body", "mount", "micro"}; !reflect.DeepEqual(log, want) {
		t.Errorf("expected %v, got %v", want, log)
	}
}

func TestDetachedMicrotaskSurvivesOwnerDisposal(t *testing.T) {
	rt := NewRuntime()
	var log []string
	_ = rt.Batch(func() {
		o := rt.NewOwner()
		_ = rt.RunWithOwner(o, func() {
			rt.QueueMicrotask(func() { log = append(log, "owned") })
			rt.QueueDetachedMicrotask(func() { log = append(log, "detached") })
		})
		_ = o.Dispose()
	})
	if want := []string{"detached"}; !reflect.DeepEqual(log, want) {
		t.Errorf("expected %v, got %v", want, log)
	}
}
