// Package provisioning turns a completed provisioning handshake into
// live and durable node state.
//
// The handshake itself is external; this package consumes its result.
// An Outcome carries the node's new unicast address, device key, IV
// index and, usually, the first network key. The RecordStore persists
// the identity fields as a fixed-layout record in the tag-addressed
// durable store so the node restarts straight into the provisioned
// state. The Applier distributes an outcome across the live subsystems
// in dependency order: IV tracker, primary address, device key, first
// subnet (key table, subnet context, secure beacon), and finally proxy
// serving with network-identifier advertising.
//
// An Outcome is consumed exactly once. Re-applying one would register
// its network key a second time; the caller owns that contract.
package provisioning
