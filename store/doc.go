// Package store persists finished evaluation runs.
//
// Three implementations of core.Store are provided. All of them also
// implement core.RunLoader so persisted runs can be read back:
//
//   - InMemoryStore keeps snapshots in a process local map
//   - BadgerStore writes JSON snapshots to an embedded badger database under
//     the key "run/<id>"
//   - FileStore writes one "<id>.json" file per run into a directory
//
// Snapshots are cloned on the way in and out; callers never share memory
// with a store.
package store
