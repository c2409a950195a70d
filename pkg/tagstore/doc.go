// Package tagstore provides a flat, tag-addressed durable key/value store.
//
// Security records (network keys, application keys, the provisioning
// record) are persisted under fixed-width 32-bit tags so a node can
// restore its mesh membership across restarts. The store deliberately has
// no schema: callers own the byte layout of every value, the store only
// guarantees that what was written under a tag is read back under the
// same tag.
//
// Two implementations are provided:
//
//   - MemoryStore: map-backed, for tests and nodes without persistence.
//   - FileStore: snapshot-to-disk store with an atomic CBOR image,
//     suitable for a node that must survive process restarts.
//
// Write and delete errors are surfaced to the caller and never retried
// internally; a failed write means key material exists only in volatile
// memory, which the caller must be able to observe.
package tagstore
