// Package demo is the live application the reactor binary serves.
//
// It mounts a keyed list and an empty-state banner into a <main> element and
// reorders the list on every step, so that a mirror has a steady stream of
// reconciler moves to forward.
package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/flow"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// Item is one row of the list.
type Item struct {
	ID    int
	Label string
}

// Op is a list edit applied by Step.
type Op string

// List edits.
const (
	OpInsert  Op = "insert"
	OpRemove  Op = "remove"
	OpSwap    Op = "swap"
	OpReverse Op = "reverse"
	OpShuffle Op = "shuffle"
	OpRename  Op = "rename"
	OpClear   Op = "clear"
)

var stepOps = []Op{OpInsert, OpInsert, OpRemove, OpSwap, OpReverse, OpShuffle, OpRename}

var words = []string{
	"amber", "birch", "cedar", "delta", "ember", "fjord", "grove", "harbor",
	"iris", "juniper", "kelp", "lumen", "maple", "nectar", "onyx", "pine",
}

// Options configures an App.
type Options struct {
	// Items is the initial list length.
	Items int
	// Seed makes the sequence of steps reproducible.
	Seed uint64
	// Wrap, if set, wraps the list container before the For block uses it.
	// The server uses it to count container operations.
	Wrap func(dom.Container) dom.Container
}

// App is a mounted demo tree.
type App struct {
	rt     *reactive.Runtime
	doc    *dom.Document
	root   *dom.Element
	items  *reactive.Cell[[]Item]
	rng    *rand.Rand
	nextID int
	scope  *reactive.Root[struct{}]
}

// New builds the demo tree in doc. It must run on the runtime goroutine.
func New(rt *reactive.Runtime, doc *dom.Document, opts Options) (*App, error) {
	a := &App{
		rt:   rt,
		doc:  doc,
		root: doc.CreateElement("main"),
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}

	initial := make([]Item, 0, opts.Items)
	for i := 0; i < opts.Items; i++ {
		initial = append(initial, a.newItem())
	}

	scope, err := reactive.CreateRoot(rt, func(dispose func() error) struct{} {
		a.items = reactive.NewCell(rt, initial, reactive.WithEquals(sameItems))
		a.mount(opts.Wrap)
		return struct{}{}
	})
	if err != nil {
		return nil, err
	}
	a.scope = scope
	return a, nil
}

func (a *App) mount(wrap func(dom.Container) dom.Container) {
	rt, doc := a.rt, a.doc

	title := doc.CreateElement("h1")
	title.AppendChild(doc.CreateText("reactor"))
	a.root.AppendChild(title)

	count := doc.CreateElement("p")
	count.SetAttr("class", "count")
	countText := doc.CreateText("")
	count.AppendChild(countText)
	a.root.AppendChild(count)

	rt.CreateEffect(func() reactive.Cleanup {
		countText.SetData(strconv.Itoa(len(a.items.Get())) + " items")
		return nil
	})

	list := doc.CreateElement("ul")
	a.root.AppendChild(list)

	flow.Show(rt, flow.Host{Platform: doc, Parent: a.root, Before: list}, flow.ShowProps[string]{
		When: func() bool { return len(a.items.Get()) == 0 },
		Then: func() string { return "nothing here yet" },
		Render: func(msg string) dom.Node {
			p := doc.CreateElement("p")
			p.SetAttr("class", "empty")
			p.AppendChild(doc.CreateText(msg))
			return p
		},
	})

	var parent dom.Container = list
	if wrap != nil {
		parent = wrap(list)
	}
	flow.For(rt, flow.Host{Platform: doc, Parent: parent}, flow.ForProps[Item, int, *dom.Element]{
		Each: a.items.Get,
		Key:  func(it Item) int { return it.ID },
		Item: func(item func() Item, index func() int) *dom.Element {
			li := doc.CreateElement("li")
			li.SetAttr("data-id", strconv.Itoa(item().ID))
			label := doc.CreateText("")
			li.AppendChild(label)
			rt.CreateEffect(func() reactive.Cleanup {
				label.SetData(fmt.Sprintf("%d. %s", index()+1, item().Label))
				return nil
			})
			return li
		},
		Render: func(li *dom.Element) dom.Node { return li },
	})
}

// Root returns the <main> element holding the tree.
func (a *App) Root() *dom.Element {
	return a.root
}

// Items returns the current list without tracking.
func (a *App) Items() []Item {
	return a.items.Peek()
}

// Step applies one random edit and returns it. An empty list always grows.
func (a *App) Step() (Op, error) {
	op := stepOps[a.rng.IntN(len(stepOps))]
	if len(a.items.Peek()) == 0 {
		op = OpInsert
	}
	return op, a.Apply(op)
}

// Apply applies op to the list in one batch.
func (a *App) Apply(op Op) error {
	return a.rt.Batch(func() {
		a.items.Set(a.edit(op, a.items.Peek()))
	})
}

func (a *App) edit(op Op, cur []Item) []Item {
	next := make([]Item, len(cur), len(cur)+1)
	copy(next, cur)
	n := len(next)

	switch op {
	case OpInsert:
		at := a.rng.IntN(n + 1)
		next = append(next, Item{})
		copy(next[at+1:], next[at:])
		next[at] = a.newItem()
	case OpRemove:
		if n > 0 {
			at := a.rng.IntN(n)
			next = append(next[:at], next[at+1:]...)
		}
	case OpSwap:
		if n > 1 {
			i, j := a.rng.IntN(n), a.rng.IntN(n)
			next[i], next[j] = next[j], next[i]
		}
	case OpReverse:
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			next[i], next[j] = next[j], next[i]
		}
	case OpShuffle:
		a.rng.Shuffle(n, func(i, j int) { next[i], next[j] = next[j], next[i] })
	case OpRename:
		if n > 0 {
			at := a.rng.IntN(n)
			next[at].Label = words[a.rng.IntN(len(words))]
		}
	case OpClear:
		next = next[:0]
	}
	return next
}

func (a *App) newItem() Item {
	a.nextID++
	return Item{ID: a.nextID, Label: words[a.rng.IntN(len(words))]}
}

// Run posts a Step to the runtime every interval until ctx is done. Step
// errors are handed to the runtime's error handler.
func (a *App) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.rt.Post(func() {
				_, err := a.Step()
				a.rt.HandleError(err)
			})
		}
	}
}

// Dispose tears the tree down. The <main> element keeps only its static
// children afterwards.
func (a *App) Dispose() error {
	return a.scope.Dispose()
}

func sameItems(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
