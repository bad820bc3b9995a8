// Package flow provides the dynamic control-flow blocks of reactor: Show for
// conditional content and For for keyed lists.
//
// A block anchors a region of a container with a marker node and keeps the
// region in sync with reactive state. Each branch or list item runs in its
// own owner, so its effects and cleanups live exactly as long as the content
// it produced. Child list changes are applied with package reconcile.
//
// # Show
//
//	flow.Show(rt, host, flow.ShowProps[string]{
//	    When:   func() bool { return loggedIn.Get() },
//	    Then:   func() string { return "Welcome back" },
//	    Else:   func() string { return "Please sign in" },
//	    Render: func(s string) dom.Node { return doc.CreateText(s) },
//	})
//
// The branch is only rebuilt when When flips.
//
// # For
//
//	flow.For(rt, host, flow.ForProps[Todo, int, dom.Node]{
//	    Each: todos.Get,
//	    Key:  func(t Todo) int { return t.ID },
//	    Item: func(item func() Todo, index func() int) dom.Node {
//	        return renderTodo(item)
//	    },
//	    Render: func(n dom.Node) dom.Node { return n },
//	})
//
// Items are matched by key between evaluations. A surviving item keeps its
// node and owner; only its item and index accessors change.
package flow
