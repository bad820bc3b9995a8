package reconcile

import "github.com/vango-dev/reactor/pkg/dom"

// Reconcile rearranges parent so that the nodes of old, which must be
// attached to parent in order and contiguous, become exactly target.
// Nodes after the last old node are left untouched.
func Reconcile(parent dom.Container, old, target []dom.Node) {
	var after dom.Node
	if len(old) > 0 {
		after = parent.NextSibling(old[len(old)-1])
	}
	ReconcileBefore(parent, old, target, after)
}

// ReconcileBefore is Reconcile with an explicit end anchor: after is the
// node following the region, or nil for the end of parent. Blocks pass their
// marker so that an empty region still knows where to insert.
func ReconcileBefore(parent dom.Container, old, target []dom.Node, after dom.Node) {
	aStart, aEnd := 0, len(old)
	bStart, bEnd := 0, len(target)
	bLen := len(target)
	var index map[dom.Node]int

	for aStart < aEnd || bStart < bEnd {
		// Common prefix.
		if aStart < aEnd && bStart < bEnd && old[aStart] == target[bStart] {
			aStart++
			bStart++
			continue
		}

		// Common suffix.
		for aEnd > aStart && bEnd > bStart && old[aEnd-1] == target[bEnd-1] {
			aEnd--
			bEnd--
		}

		switch {
		case aEnd == aStart:
			// Append: everything left in target is new here.
			ref := after
			if bEnd < bLen {
				if bStart > 0 {
					ref = parent.NextSibling(target[bStart-1])
				} else {
					ref = target[bEnd]
				}
			}
			insertRange(parent, target[bStart:bEnd], ref)
			bStart = bEnd

		case bEnd == bStart:
			// Remove: nodes still indexed were already moved into place.
			for ; aStart < aEnd; aStart++ {
				if _, placed := index[old[aStart]]; !placed {
					parent.RemoveChild(old[aStart])
				}
			}

		case old[aStart] == target[bEnd-1] && target[bStart] == old[aEnd-1]:
			// Mirrored ends: swap the two nodes.
			ref := parent.NextSibling(old[aEnd-1])
			aEnd--
			parent.InsertBefore(target[bStart], parent.NextSibling(old[aStart]))
			aStart++
			bStart++
			bEnd--
			parent.InsertBefore(target[bEnd], ref)
			old[aEnd] = target[bEnd]

		default:
			if index == nil {
				index = make(map[dom.Node]int, bEnd-bStart)
				for i := bStart; i < bEnd; i++ {
					index[target[i]] = i
				}
			}
			pos, ok := index[old[aStart]]
			if !ok {
				parent.RemoveChild(old[aStart])
				aStart++
				continue
			}
			if pos <= bStart || pos >= bEnd {
				// Already placed.
				aStart++
				continue
			}
			run := 1
			for i := aStart + 1; i < aEnd && i < bEnd; i++ {
				if t, ok := index[old[i]]; !ok || t != pos+run {
					break
				}
				run++
			}
			// Moving the run's leading target nodes in front of it costs no
			// more than replacing when the run is at least that long.
			if run >= pos-bStart {
				ref := old[aStart]
				for bStart < pos {
					parent.InsertBefore(target[bStart], ref)
					bStart++
				}
			} else {
				parent.ReplaceChild(target[bStart], old[aStart])
				bStart++
				aStart++
			}
		}
	}
}

// insertRange inserts nodes before ref, grouping them into one fragment
// when there is more than one and parent can build fragments. A factory
// returning nil falls back to one insert per node.
func insertRange(parent dom.Container, nodes []dom.Node, ref dom.Node) {
	if len(nodes) > 1 {
		if ff, ok := parent.(dom.FragmentFactory); ok {
			if frag := ff.NewFragment(); frag != nil {
				for _, n := range nodes {
					frag.InsertBefore(n, nil)
				}
				parent.InsertBefore(frag, ref)
				return
			}
		}
	}
	for _, n := range nodes {
		parent.InsertBefore(n, ref)
	}
}
