// Package keystore persists mesh security records in a tag-addressed
// durable store.
//
// Two record kinds are managed, each in its own tag namespace:
//
//   - NetworkKeyRecord: the root network key for one subnet plus the
//     derived identity, beacon, encryption and privacy keys, the network
//     identifier and its NID.
//   - ApplicationKeyRecord: an access-layer key bound to a network key.
//
// Records are addressed by a dense internal slot index that is never
// protocol-visible; the protocol-visible key indices (sparse, 16-bit)
// travel inside the record. A tag is 'M' | kind | slot, where kind is 'N'
// for network keys and 'A' for application keys, so the two namespaces
// can never collide and neither can two slots of the same kind.
//
// Records use a fixed binary layout. Loads verify the exact record size
// and silently skip anything else, which tolerates partial writes and
// incompatible images without aborting the restore scan.
package keystore
