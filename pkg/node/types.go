package node

import (
	"errors"
	"log/slog"

	"github.com/meshnode-protocol/meshnode-go/pkg/bearer"
	"github.com/meshnode-protocol/meshnode-go/pkg/identity"
	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/model"
	"github.com/meshnode-protocol/meshnode-go/pkg/provisioning"
	"github.com/meshnode-protocol/meshnode-go/pkg/tagstore"
)

// Controller errors.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrAlreadyStarted     = errors.New("controller already started")
	ErrNotStarted         = errors.New("controller not started")
	ErrAlreadyProvisioned = errors.New("node already provisioned")
	ErrMissingOutcome     = errors.New("provisioning-complete event without outcome")
)

// LifecycleState is the node's position in the provisioning lifecycle.
// Transitions are one-way; returning to Unprovisioned requires an
// external factory reset.
type LifecycleState uint8

const (
	// StateUninitialized - before the system-ready event.
	StateUninitialized LifecycleState = iota

	// StateUnprovisioned - discoverable and joinable.
	StateUnprovisioned

	// StateProvisioned - member of a secured mesh.
	StateProvisioned
)

// String returns the state name.
func (s LifecycleState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateUnprovisioned:
		return "UNPROVISIONED"
	case StateProvisioned:
		return "PROVISIONED"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a controller event.
type EventType uint8

const (
	// EventSystemReady - the radio/host subsystem became operational.
	// Fires once per process lifetime.
	EventSystemReady EventType = iota

	// EventConnectionUp - a connection-oriented bearer session started.
	EventConnectionUp

	// EventConnectionDown - a connection-oriented bearer session ended.
	EventConnectionDown

	// EventProvisioningComplete - the provisioning handshake finished.
	// Fires at most once per process lifetime.
	EventProvisioningComplete
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventSystemReady:
		return "SYSTEM_READY"
	case EventConnectionUp:
		return "CONNECTION_UP"
	case EventConnectionDown:
		return "CONNECTION_DOWN"
	case EventProvisioningComplete:
		return "PROVISIONING_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one discrete controller event.
type Event struct {
	// Type is the event type. Types beyond the defined constants are
	// not interpreted by the controller, only forwarded.
	Type EventType

	// Outcome carries the provisioning result for
	// EventProvisioningComplete.
	Outcome *provisioning.Outcome

	// Payload is an opaque payload for forwarded event types.
	Payload any
}

// Observer receives every event after the controller's internal
// handling, including event types the controller does not interpret.
type Observer func(Event)

// Config wires the controller's collaborators.
type Config struct {
	// Store is the durable tag store backing key and provisioning
	// records. Required.
	Store tagstore.Store

	// Advertiser controls the radio advertising modes. Required.
	Advertiser bearer.Advertiser

	// KeyTable is the live key table records are registered into.
	// Required.
	KeyTable keystore.KeyTable

	// IVTracker is the network layer's IV-index tracker. Required.
	IVTracker provisioning.IVTracker

	// Beacons starts secure-network beaconing per subnet. Required.
	Beacons provisioning.BeaconStarter

	// Proxy enables proxy serving over the connection-oriented bearer.
	// Optional.
	Proxy provisioning.ProxyServer

	// Node is the access-layer node model. A fresh node is created if
	// nil. The controller installs the default foundation models on the
	// primary element either way.
	Node *model.Node

	// Identity supplies the device UUID. Defaults to a crypto/rand
	// backed provider if nil.
	Identity *identity.Provider

	// QueueSize is the Dispatch queue capacity. Default: 16.
	QueueSize int

	// Logger may be nil to disable logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with defaults applied; the required
// collaborators still have to be set.
func DefaultConfig() Config {
	return Config{
		QueueSize: 16,
	}
}

// Validate checks that all required collaborators are present.
func (c *Config) Validate() error {
	if c.Store == nil || c.Advertiser == nil || c.KeyTable == nil ||
		c.IVTracker == nil || c.Beacons == nil {
		return ErrInvalidConfig
	}
	return nil
}
