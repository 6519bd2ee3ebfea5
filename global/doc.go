// Package global provides a process-global root table.
//
// Frames root data for the duration of a lexical scope; some data must
// instead stay reachable for as long as the host decides, like modules
// looked up once or callbacks installed into the foreign side.
// The Table holds such references: every inserted reference
// is reported to the collector on every cycle until it is removed.
//
// Unlike the shadow stack, a Table is shared: inserts and removals may come
// from any thread. Lifecycle observers can subscribe to watch references
// enter and leave the table.
package global
