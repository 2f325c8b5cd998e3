// Package doc provides the path-addressable document store that backs every
// entity and the global simulation state.
//
// A Document is a tree of Nodes (Null, Number, Bool, String, Array, Object)
// with a scalar cache overlay keyed by canonical path strings. Scalar writes
// land in the cache only; structured writes go straight to the tree. The
// cache is reconciled into the tree by Flush, which every serialization and
// every structural read performs first.
//
// Key constraints:
//   - Get never fails: a miss or a failed conversion returns the caller default
//   - A path is never authoritative in both the cache and the tree
//   - Object keys are unordered in memory and sorted only when serializing
//   - Every public method takes the document mutex exactly once
//     (no method calls another public method while holding it)
package doc
