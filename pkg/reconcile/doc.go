// Package reconcile turns the children of a container from one ordered node
// sequence into another with few platform operations.
//
// Reconcile is the only code in reactor that mutates a container's child
// list directly. It never creates or destroys nodes: nodes present in both
// sequences keep their identity and are moved, nodes only in the old
// sequence are removed, and nodes only in the target are inserted.
//
// # Algorithm
//
// The work is split into five phases:
//
//  1. Skip the common prefix.
//  2. Skip the common suffix.
//  3. If only target nodes remain, insert them. More than one node is
//     grouped into a single fragment when the container supports it.
//  4. If only old nodes remain, remove them.
//  5. Otherwise swap mirrored ends directly, or fall back to a lazily built
//     index of target positions. A run of old nodes already in increasing
//     target order is kept in place and the missing target nodes are
//     inserted before it; a short run is replaced node by node instead.
//
// Phases 1 to 4 are linear and cover prepends, appends, truncation and
// unchanged lists. Phase 5 costs in proportion to the rearranged region.
//
// The old slice may be modified by phase 5. Callers that need it
// afterwards must pass a copy.
package reconcile
