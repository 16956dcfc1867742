// Package storage persists snapshots of the room registry.
//
// Every save replaces the previous snapshot as a whole and appends an entry
// to the snapshot history. Open returns (nil, nil) when storage is disabled.
package storage
