// Package reactive provides the reactive core of reactor.
//
// A Runtime holds one dependency graph. Reading a cell or a derived node while
// a derived computation or an effect runs records a dependency; writing a cell
// marks every transitive dependent dirty. Derived nodes recompute lazily when
// read, effects re-run when the enclosing batch settles, each at most once.
//
// # Core Types
//
// Cell[T] is a reactive value container:
//
//	count := reactive.NewCell(rt, 0)
//	value := count.Get()  // Read (tracked)
//	count.Set(5)          // Write (marks dependents dirty)
//	count.Update(func(n int) int { return n + 1 })
//
// Derived[T] is a cached computation:
//
//	doubled := reactive.NewDerived(rt, func() int { return count.Get() * 2 })
//	value := doubled.Get()  // Recomputes only if a dependency changed
//
// Effect runs side effects when dependencies change:
//
//	rt.CreateEffect(func() reactive.Cleanup {
//	    fmt.Println("Count is:", count.Get())
//	    return func() { /* cleanup */ }
//	})
//
// # Batching
//
// Writes can be grouped so that each affected effect runs once:
//
//	rt.Batch(func() {
//	    a.Set(1)
//	    b.Set(2)
//	    c.Set(3)
//	})  // Each dependent effect ran once
//
// # Ownership
//
// Every node is created under the current owner. Disposing an owner disposes
// its child owners, then its nodes, then runs its cleanups last-in-first-out.
// CreateRoot starts a detached tree.
//
// # Threading
//
// A Runtime is single-threaded and has no locks. Drive it from one goroutine
// with Run and hand work to it from other goroutines with Post.
package reactive
