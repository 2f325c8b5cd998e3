// Package engine implements the rule broadcast engine.
//
// Every tick the container hands each active entity to Sim.Update, which
// runs the entity's local rules against itself and its broadcast rules
// against every entity listening on the rule's topic. Guards and values
// are resolved with the expr package against the (self, other, global)
// document triple, and passing assignments are written straight back
// into those documents.
//
// CONSISTENCY:
//
// Writes apply immediately and in place. A broadcast rule that reads
// another entity during the parallel phase may see that entity before or
// after its own update in the same tick. Within one entity, rules run in
// source order and listeners in ascending ID order, so a single-worker
// run is fully deterministic. Document-level locking keeps concurrent
// writers from losing updates: add is an atomic read-modify-write.
//
// TERMINATION:
//
// The ledger allows each (rule, other) pair to be evaluated at most once per
// tick, and the firing quota caps the work one entity can cause. Neither
// condition aborts the tick; both are logged.
package engine
