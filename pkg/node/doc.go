// Package node implements the node lifecycle controller.
//
// A node moves one way through three lifecycle states:
//
//	Uninitialized -> Unprovisioned -> Provisioned
//
// The controller is driven by discrete events from the host stack:
// system-ready, connection up/down on the connection-oriented bearer,
// and provisioning-complete from the provisioning handshake. On
// system-ready it recovers persisted provisioning state from the durable
// store and either resumes the provisioned role (restore keys, apply the
// recovered outcome, network-identifier advertising) or enters discovery
// (obtain a device UUID, unprovisioned advertising). Connection events
// only switch advertising modes; provisioning-complete persists and
// applies the handshake outcome exactly once.
//
// Events are processed strictly one at a time; a handler runs to
// completion before the next event is taken. Dispatch feeds a single
// drain goroutine, and the identity provider's asynchronous completion
// re-enters through the same serialized path, so no component below the
// controller needs to defend against reentrancy.
//
// Event types the controller does not interpret are forwarded unmodified
// to the registered observer, as are the ones it does, after internal
// handling.
package node
