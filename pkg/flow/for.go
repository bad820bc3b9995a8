package flow

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/vango-dev/reactor/pkg/dom"
	"github.com/vango-dev/reactor/pkg/reactive"
)

// ForProps configures a keyed list block.
type ForProps[T any, K comparable, D any] struct {
	// Each returns the source items. It is the only tracked read of the
	// block.
	Each func() []T
	// Key identifies an item across evaluations. Keys must be unique within
	// one evaluation. Nil uses the item itself, which must then be a K.
	Key func(T) K
	// Item produces the content of one item. It runs once per key; item
	// and index are reactive accessors updated when the key survives a
	// re-evaluation.
	Item func(item func() T, index func() int) D
	// Render turns produced content into a node. A nil node is skipped.
	Render func(D) dom.Node
}

// row is the mounted state of one key.
type row[T any] struct {
	owner *reactive.Owner
	node  dom.Node
	item  *reactive.Cell[T]
	index *reactive.Cell[int]
}

// For mounts a keyed list block in host.
//
// On every change of Each, rows whose key disappeared are disposed, new keys
// get a fresh owner in which Item runs, and surviving keys are kept without
// running Item again. The resulting nodes are reconciled in source order.
// A duplicate key fails the evaluation with ErrDuplicateKey before anything
// is disposed or mutated.
func For[T any, K comparable, D any](rt *reactive.Runtime, host Host, props ForProps[T, K, D]) *Block {
	b := newBlock(rt, host, "for")

	rows := make(map[K]*row[T])
	var order []K

	b.mount(func() {
		rt.CreateEffect(func() reactive.Cleanup {
			items := props.Each()

			var target []dom.Node
			rt.HandleError(rt.RunWithOwner(b.owner, func() {
				keys, index := keysOf(items, props.Key)

				for _, k := range order {
					r, ok := rows[k]
					if _, keep := index[k]; keep || !ok {
						continue
					}
					rt.HandleError(r.owner.Dispose())
					delete(rows, k)
				}

				// order only holds keys with a row, so a key whose Item
				// failed is produced again on the next evaluation.
				order = order[:0]
				target = make([]dom.Node, 0, len(items))
				for i, it := range items {
					r, ok := rows[keys[i]]
					if ok {
						r.item.Set(it)
						r.index.Set(i)
					} else {
						var err error
						if r, err = newRow(rt, props, it, i); err != nil {
							rt.HandleError(err)
							continue
						}
						rows[keys[i]] = r
					}
					order = append(order, keys[i])
					if r.node != nil {
						target = append(target, r.node)
					}
				}
			}))
			b.update(target)
			return nil
		})
	})
	return b
}

// newRow produces the row of a new key. When Item or Render fails, the
// half-built scope is disposed and no row is returned.
func newRow[T any, K comparable, D any](rt *reactive.Runtime, props ForProps[T, K, D], it T, i int) (*row[T], error) {
	r := &row[T]{owner: rt.NewOwner()}
	err := rt.TryWithOwner(r.owner, func() {
		r.item = reactive.NewCell(rt, it)
		r.index = reactive.NewCell(rt, i)
		r.node = props.Render(props.Item(r.item.Get, r.index.Get))
	})
	if err != nil {
		return nil, multierr.Append(err, r.owner.Dispose())
	}
	return r, nil
}

// keysOf extracts the keys of items and panics with a usage error on the
// first duplicate.
func keysOf[T any, K comparable](items []T, key func(T) K) ([]K, map[K]int) {
	keys := make([]K, len(items))
	index := make(map[K]int, len(items))
	for i, it := range items {
		var k K
		if key != nil {
			k = key(it)
		} else {
			k = any(it).(K)
		}
		if j, dup := index[k]; dup {
			panic(reactive.NewUsageError("R001", "flow.for", reactive.ErrDuplicateKey,
				fmt.Sprintf("key %v at index %d and %d", k, j, i)))
		}
		index[k] = i
		keys[i] = k
	}
	return keys, index
}
