package provisioning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meshnode-protocol/meshnode-go/pkg/bearer"
	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/model"
)

// IVTracker is the network layer's sequence-number and IV-index tracker.
type IVTracker interface {
	// RecoverIVIndex installs the IV index and its update-active flag.
	RecoverIVIndex(ivIndex uint32, updateActive bool)
}

// BeaconStarter starts periodic secure-network beacon transmission for
// one subnet.
type BeaconStarter interface {
	StartSecureBeacon(netKeyIndex uint16)
}

// ProxyServer is proxy serving over the connection-oriented bearer.
type ProxyServer interface {
	// Init binds the proxy service to the node's unicast address.
	Init(unicastAddress uint16)
}

// Applier activates a provisioning outcome across the live subsystems.
type Applier struct {
	node      *model.Node
	ivTracker IVTracker
	keyTable  keystore.KeyTable
	beacons   BeaconStarter

	// Optional: nil disables proxy serving (step 5).
	proxy      ProxyServer
	advertiser bearer.Advertiser

	logger *slog.Logger
}

// ApplierConfig wires the Applier's collaborators.
type ApplierConfig struct {
	Node      *model.Node
	IVTracker IVTracker
	KeyTable  keystore.KeyTable
	Beacons   BeaconStarter

	// Proxy and Advertiser enable proxy serving after apply. Both may
	// be nil for nodes without a connection-oriented bearer.
	Proxy      ProxyServer
	Advertiser bearer.Advertiser

	// Logger may be nil to disable logging.
	Logger *slog.Logger
}

// NewApplier creates an applier over its collaborators.
func NewApplier(config ApplierConfig) *Applier {
	return &Applier{
		node:       config.Node,
		ivTracker:  config.IVTracker,
		keyTable:   config.KeyTable,
		beacons:    config.Beacons,
		proxy:      config.Proxy,
		advertiser: config.Advertiser,
		logger:     config.Logger,
	}
}

// Apply distributes the outcome across the live subsystems, in order:
// IV tracker, primary address, device key, first subnet, proxy serving.
// Later steps depend on earlier ones.
//
// Apply must be called at most once per outcome; re-applying an outcome
// with a network key would register that key a second time.
func (a *Applier) Apply(ctx context.Context, outcome *Outcome) error {
	a.ivTracker.RecoverIVIndex(outcome.IVIndex, outcome.IVUpdateActive())

	a.node.SetPrimaryAddress(outcome.UnicastAddress)
	a.node.SetDeviceKey(outcome.DeviceKey)

	if a.logger != nil {
		a.logger.Info("applying provisioning outcome",
			"unicastAddress", fmt.Sprintf("%#04x", outcome.UnicastAddress),
			"ivIndex", outcome.IVIndex,
			"ivUpdateActive", outcome.IVUpdateActive(),
			"hasNetworkKey", outcome.NetworkKey != nil)
	}

	if outcome.NetworkKey != nil {
		outcome.NetworkKey.EnsureAdvertisement()
		if err := a.keyTable.AddNetworkKey(outcome.NetworkKey); err != nil {
			return fmt.Errorf("failed to register provisioned network key: %w", err)
		}
		a.keyTable.SetupSubnet(outcome.NetworkKey.NetKeyIndex)
		a.beacons.StartSecureBeacon(outcome.NetworkKey.NetKeyIndex)
	}

	if a.proxy != nil {
		a.proxy.Init(outcome.UnicastAddress)
		if a.advertiser != nil {
			if err := a.advertiser.AdvertiseNetworkID(ctx); err != nil {
				return fmt.Errorf("failed to start network-ID advertising: %w", err)
			}
		}
	}

	return nil
}
