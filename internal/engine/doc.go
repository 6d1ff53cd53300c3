// Package engine implements the live texture-graph execution engine.
//
// ARCHITECTURE:
//
// One lock, many workers:
// A LiveGraph combines the node graph, the per-node scheduling state, the
// in-memory buffer cache and the changed-node set behind one sync.RWMutex.
// Reads (state queries, pixel fetches) take the shared lock; mutations,
// dirty marking, job dispatch and result commits take the exclusive lock.
// Node compute functions run on pool workers outside the lock.
//
// Node lifecycle:
//
//	Dirty -> Requested | Prioritised -> Processing -> Clean
//	                                             \-> Dirty (error recorded)
//
// Any mutation touching a node, or any of its ancestors, sends it and all of
// its downstream consumers back to Dirty and stamps a fresh version from the
// Clock.
//
// Dispatch Flow:
//  1. Materialize marks every non-Clean ancestor of the targets as
//     Requested (targets themselves Prioritised) and wakes the workers
//  2. A worker takes the best eligible job under the lock: all producers
//     Clean, Prioritised before Requested, shallower depth first, lower id
//     last; inputs are captured as immutable buffer pointers
//  3. The worker computes outside the lock, consulting the persistent
//     BufferStore first when use_cache is on
//  4. The commit re-takes the lock and applies the result only if the node
//     still carries the version captured at dispatch; stale results are
//     discarded
//
// CRITICAL PATTERNS:
//
// Never wedged: a compute function that panics is recovered and recorded as
// a PANIC ComputeError, so a node always leaves Processing.
//
// Failure containment: a failed node stays Dirty with its error, and every
// pending consumer of it is released back to Dirty with UPSTREAM_FAILED so
// waiters terminate.
//
// Deterministic order: job selection and ChangedConsume output are fully
// ordered; only the interleaving of independent subtrees varies.
package engine
