package bearer

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/meshnode-protocol/meshnode-go/pkg/identity"
)

// DNS-SD service types for the three advertising modes.
const (
	ServiceTypeUnprovisioned = "_meshnode-unprov._udp"
	ServiceTypeNetworkID     = "_meshnode-proxy._tcp"
	ServiceTypeNodeIdentity  = "_meshnode-ident._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is advertised when the config doesn't set one.
	DefaultPort = 8443
)

// MDNSAdvertiserConfig configures the simulation bearer.
type MDNSAdvertiserConfig struct {
	// Instance is the service instance name prefix.
	Instance string

	// Port is the advertised port.
	Port int

	// Interface restricts advertising to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL is the DNS record TTL. Default: 120 seconds.
	TTL time.Duration

	// Subnets supplies network identifiers for network-ID mode.
	// Optional; without it network-ID advertisements carry no subnet
	// TXT records.
	Subnets SubnetDirectory
}

// DefaultMDNSAdvertiserConfig returns the default configuration.
func DefaultMDNSAdvertiserConfig() MDNSAdvertiserConfig {
	return MDNSAdvertiserConfig{
		Instance: "meshnode",
		Port:     DefaultPort,
		TTL:      120 * time.Second,
	}
}

// MDNSAdvertiser implements Advertiser over DNS-SD, mapping each
// advertising mode onto its own service type. It exists so a node can be
// developed and demonstrated on an IP network; a production node replaces
// it with the radio bearer.
type MDNSAdvertiser struct {
	config MDNSAdvertiserConfig

	mu sync.Mutex

	unprovisionedServer *zeroconf.Server
	networkIDServer     *zeroconf.Server
	nodeIdentityServer  *zeroconf.Server

	// Mode parameters, kept for idempotency checks.
	nodeIdentityIndex uint16
}

// NewMDNSAdvertiser creates a new simulation bearer.
func NewMDNSAdvertiser(config MDNSAdvertiserConfig) *MDNSAdvertiser {
	if config.Instance == "" {
		config.Instance = "meshnode"
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	return &MDNSAdvertiser{config: config}
}

// getInterfaces returns the network interfaces to advertise on.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func (a *MDNSAdvertiser) serverOptions() []zeroconf.ServerOption {
	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}
	return opts
}

// AdvertiseUnprovisioned starts unprovisioned discovery advertising.
func (a *MDNSAdvertiser) AdvertiseUnprovisioned(ctx context.Context, deviceUUID identity.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unprovisionedServer != nil {
		return nil
	}

	txt := []string{
		"uuid=" + deviceUUID.String(),
	}

	server, err := zeroconf.Register(
		a.config.Instance,
		ServiceTypeUnprovisioned,
		Domain,
		a.config.Port,
		txt,
		a.getInterfaces(),
		a.serverOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to register unprovisioned service: %w", err)
	}

	a.unprovisionedServer = server
	return nil
}

// StopUnprovisioned stops unprovisioned discovery advertising.
func (a *MDNSAdvertiser) StopUnprovisioned() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.unprovisionedServer != nil {
		a.unprovisionedServer.Shutdown()
		a.unprovisionedServer = nil
	}
	return nil
}

// AdvertiseNetworkID starts network-identifier advertising for the
// node's subnets.
func (a *MDNSAdvertiser) AdvertiseNetworkID(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.networkIDServer != nil {
		return nil
	}

	var txt []string
	if a.config.Subnets != nil {
		for _, networkID := range a.config.Subnets.NetworkIDs() {
			txt = append(txt, "ni="+hex.EncodeToString(networkID))
		}
	}

	server, err := zeroconf.Register(
		a.config.Instance,
		ServiceTypeNetworkID,
		Domain,
		a.config.Port,
		txt,
		a.getInterfaces(),
		a.serverOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to register network-ID service: %w", err)
	}

	a.networkIDServer = server
	return nil
}

// StopNetworkID stops network-identifier advertising.
func (a *MDNSAdvertiser) StopNetworkID() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.networkIDServer != nil {
		a.networkIDServer.Shutdown()
		a.networkIDServer = nil
	}
	return nil
}

// AdvertiseNodeIdentity starts node-identity advertising scoped to one
// network key index.
func (a *MDNSAdvertiser) AdvertiseNodeIdentity(ctx context.Context, netKeyIndex uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nodeIdentityServer != nil {
		if a.nodeIdentityIndex == netKeyIndex {
			return nil
		}
		// Re-scope to the new subnet.
		a.nodeIdentityServer.Shutdown()
		a.nodeIdentityServer = nil
	}

	txt := []string{
		fmt.Sprintf("idx=%04x", netKeyIndex),
	}

	server, err := zeroconf.Register(
		a.config.Instance,
		ServiceTypeNodeIdentity,
		Domain,
		a.config.Port,
		txt,
		a.getInterfaces(),
		a.serverOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to register node-identity service: %w", err)
	}

	a.nodeIdentityServer = server
	a.nodeIdentityIndex = netKeyIndex
	return nil
}

// StopNodeIdentity stops node-identity advertising.
func (a *MDNSAdvertiser) StopNodeIdentity() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nodeIdentityServer != nil {
		a.nodeIdentityServer.Shutdown()
		a.nodeIdentityServer = nil
	}
	return nil
}

// StopAll stops every active advertisement.
func (a *MDNSAdvertiser) StopAll() {
	_ = a.StopUnprovisioned()
	_ = a.StopNetworkID()
	_ = a.StopNodeIdentity()
}

// Compile-time check.
var _ Advertiser = (*MDNSAdvertiser)(nil)
