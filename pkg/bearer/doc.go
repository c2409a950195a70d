// Package bearer controls the node's radio-advertising behavior.
//
// Three advertising modes exist, one per lifecycle situation:
//
//   - Unprovisioned discovery: advertises the device UUID so a
//     provisioner can find and join the node to a mesh.
//   - Network identifier: advertises the network IDs of the subnets the
//     node belongs to, so a connection-oriented bearer can discover any
//     node of a specific subnet (proxy mode).
//   - Node identity: advertises scoped to one network key index, letting
//     a peer find this specific provisioned node.
//
// The Advertiser interface abstracts the actual radio bearer, which is
// external to this module. Starting an already-active mode is not an
// error; the lifecycle controller re-issues starts freely after
// disconnections.
//
// MDNSAdvertiser is a simulation bearer that maps the three modes onto
// DNS-SD service types, so a node can be exercised on an ordinary IP
// network without radio hardware. NopAdvertiser discards everything.
package bearer
