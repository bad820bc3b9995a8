package demo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/reactive"
)

func newApp(t *testing.T, items int) (*App, *reactive.Runtime) {
	t.Helper()
	var errs []error
	rt := reactive.NewRuntime(reactive.WithErrorHandler(func(err error) { errs = append(errs, err) }))
	t.Cleanup(func() {
		if len(errs) > 0 {
			t.Errorf("runtime errors: %v", errs)
		}
	})
	app, err := New(rt, dom.NewDocument(), Options{Items: items, Seed: 7})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return app, rt
}

func list(app *App) *dom.Element {
	for _, n := range app.Root().Children() {
		if el, ok := n.(*dom.Element); ok && el.Tag() == "ul" {
			return el
		}
	}
	return nil
}

// rows returns "id:label" for every <li> in the list, in DOM order.
func rows(app *App) []string {
	var out []string
	for _, n := range list(app).Children() {
		li, ok := n.(*dom.Element)
		if !ok {
			continue
		}
		id, _ := li.Attr("data-id")
		text := li.Children()[0].(*dom.Text).Data()
		out = append(out, id+":"+text)
	}
	return out
}

func want(items []Item) []string {
	var out []string
	for i, it := range items {
		out = append(out, strconv.Itoa(it.ID)+":"+strconv.Itoa(i+1)+". "+it.Label)
	}
	return out
}

func TestNewRendersItems(t *testing.T) {
	app, _ := newApp(t, 3)

	if got := len(app.Items()); got != 3 {
		t.Fatalf("expected 3 items, got %d", got)
	}
	if got, exp := strings.Join(rows(app), "|"), strings.Join(want(app.Items()), "|"); got != exp {
		t.Errorf("rows = %q, want %q", got, exp)
	}
	markup := dom.Markup(app.Root())
	if !strings.Contains(markup, "3 items") {
		t.Errorf("count not rendered: %s", markup)
	}
	if strings.Contains(markup, "nothing here yet") {
		t.Errorf("banner shown for a non-empty list: %s", markup)
	}
}

func TestEmptyBanner(t *testing.T) {
	app, _ := newApp(t, 2)

	if err := app.Apply(OpClear); err != nil {
		t.Fatalf("clear: %v", err)
	}
	markup := dom.Markup(app.Root())
	if !strings.Contains(markup, "nothing here yet") || !strings.Contains(markup, "0 items") {
		t.Errorf("expected empty state, got %s", markup)
	}

	op, err := app.Step()
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if op != OpInsert {
		t.Errorf("empty list must grow, got %s", op)
	}
	if markup := dom.Markup(app.Root()); strings.Contains(markup, "nothing here yet") {
		t.Errorf("banner kept after insert: %s", markup)
	}
}

func TestStepsKeepDOMInSync(t *testing.T) {
	app, _ := newApp(t, 6)

	for _, op := range []Op{OpReverse, OpSwap, OpShuffle, OpRename, OpRemove, OpInsert} {
		if err := app.Apply(op); err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if got, exp := strings.Join(rows(app), "|"), strings.Join(want(app.Items()), "|"); got != exp {
			t.Fatalf("after %s: rows = %q, want %q", op, got, exp)
		}
	}

	for i := 0; i < 200; i++ {
		op, err := app.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got, exp := strings.Join(rows(app), "|"), strings.Join(want(app.Items()), "|"); got != exp {
			t.Fatalf("step %d (%s): rows = %q, want %q", i, op, got, exp)
		}
	}
}

func TestRowsSurviveReorder(t *testing.T) {
	app, _ := newApp(t, 5)
	before := map[string]dom.Node{}
	for _, n := range list(app).Children() {
		if li, ok := n.(*dom.Element); ok {
			id, _ := li.Attr("data-id")
			before[id] = li
		}
	}

	if err := app.Apply(OpReverse); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	for _, n := range list(app).Children() {
		if li, ok := n.(*dom.Element); ok {
			id, _ := li.Attr("data-id")
			if before[id] != n {
				t.Errorf("row %s was recreated", id)
			}
		}
	}
}

func TestWrapSeesListContainer(t *testing.T) {
	rt := reactive.NewRuntime()
	var wrapped dom.Container
	_, err := New(rt, dom.NewDocument(), Options{
		Items: 1,
		Wrap: func(c dom.Container) dom.Container {
			wrapped = c
			return c
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	el, ok := wrapped.(*dom.Element)
	if !ok || el.Tag() != "ul" {
		t.Errorf("expected the <ul> to be wrapped, got %T", wrapped)
	}
}

func TestDispose(t *testing.T) {
	app, _ := newApp(t, 4)
	if err := app.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	var tags []string
	for _, n := range app.Root().Children() {
		if el, ok := n.(*dom.Element); ok {
			tags = append(tags, el.Tag())
		} else {
			tags = append(tags, n.Kind().String())
		}
	}
	if got := strings.Join(tags, ","); got != "h1,p,ul" {
		t.Errorf("children after dispose = %q", got)
	}
	if n := list(app).Len(); n != 0 {
		t.Errorf("list kept %d nodes", n)
	}
}

func TestRunPostsSteps(t *testing.T) {
	app, rt := newApp(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = rt.Run(ctx) }()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for {
		seen := make(chan int, 1)
		rt.Post(func() { seen <- app.nextID })
		select {
		case id := <-seen:
			if id > 2 {
				cancel()
				if err := <-done; !errors.Is(err, context.Canceled) {
					t.Errorf("expected context.Canceled, got %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("no step inserted an item")
		}
		time.Sleep(time.Millisecond)
	}
}
