package bearer

import (
	"context"

	"github.com/meshnode-protocol/meshnode-go/pkg/identity"
)

// Advertiser controls the node's advertising modes.
//
// All Advertise methods are idempotent: starting a mode that is already
// active succeeds without side effects. Stop methods are no-ops when the
// mode is inactive.
type Advertiser interface {
	// AdvertiseUnprovisioned starts unprovisioned discovery advertising
	// carrying the device UUID.
	AdvertiseUnprovisioned(ctx context.Context, deviceUUID identity.UUID) error

	// StopUnprovisioned stops unprovisioned discovery advertising.
	StopUnprovisioned() error

	// AdvertiseNetworkID starts network-identifier (proxy) advertising
	// for the subnets the node belongs to.
	AdvertiseNetworkID(ctx context.Context) error

	// StopNetworkID stops network-identifier advertising.
	StopNetworkID() error

	// AdvertiseNodeIdentity starts node-identity advertising scoped to
	// one network key index.
	AdvertiseNodeIdentity(ctx context.Context, netKeyIndex uint16) error

	// StopNodeIdentity stops node-identity advertising.
	StopNodeIdentity() error

	// StopAll stops every active advertisement.
	StopAll()
}

// SubnetDirectory lists the network identifiers of the subnets the node
// currently belongs to. It is implemented by the live key table.
type SubnetDirectory interface {
	NetworkIDs() [][]byte
}

// NopAdvertiser is an Advertiser that discards everything. Useful for
// headless nodes and tests that don't observe advertising.
type NopAdvertiser struct{}

func (NopAdvertiser) AdvertiseUnprovisioned(context.Context, identity.UUID) error { return nil }
func (NopAdvertiser) StopUnprovisioned() error                                    { return nil }
func (NopAdvertiser) AdvertiseNetworkID(context.Context) error                    { return nil }
func (NopAdvertiser) StopNetworkID() error                                        { return nil }
func (NopAdvertiser) AdvertiseNodeIdentity(context.Context, uint16) error         { return nil }
func (NopAdvertiser) StopNodeIdentity() error                                     { return nil }
func (NopAdvertiser) StopAll()                                                    {}

// Compile-time check.
var _ Advertiser = NopAdvertiser{}
