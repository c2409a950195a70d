package main

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/provisioning"
)

// simNetwork is the in-process stand-in for the mesh network layer. It
// holds the live key table, tracks the IV index, and pretends to beacon
// and proxy. A real node replaces it with the radio stack.
type simNetwork struct {
	mu sync.Mutex

	logger *slog.Logger

	networkKeys map[uint16]*keystore.NetworkKeyRecord // by NetKeyIndex
	appKeys     map[uint16]*keystore.ApplicationKeyRecord
	subnets     map[uint16]bool
	beaconing   map[uint16]bool

	ivIndex        uint32
	ivUpdateActive bool
}

func newSimNetwork(logger *slog.Logger) *simNetwork {
	return &simNetwork{
		logger:      logger,
		networkKeys: make(map[uint16]*keystore.NetworkKeyRecord),
		appKeys:     make(map[uint16]*keystore.ApplicationKeyRecord),
		subnets:     make(map[uint16]bool),
		beaconing:   make(map[uint16]bool),
	}
}

func (n *simNetwork) AddNetworkKey(record *keystore.NetworkKeyRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.networkKeys[record.NetKeyIndex]; exists {
		return fmt.Errorf("network key index %#04x already registered", record.NetKeyIndex)
	}
	n.networkKeys[record.NetKeyIndex] = record
	return nil
}

func (n *simNetwork) AddAppKey(record *keystore.ApplicationKeyRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.appKeys[record.AppKeyIndex]; exists {
		return fmt.Errorf("app key index %#04x already registered", record.AppKeyIndex)
	}
	n.appKeys[record.AppKeyIndex] = record
	return nil
}

func (n *simNetwork) SetupSubnet(netKeyIndex uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subnets[netKeyIndex] = true
	if n.logger != nil {
		n.logger.Info("subnet live", "netKeyIndex", fmt.Sprintf("%#04x", netKeyIndex))
	}
}

func (n *simNetwork) RecoverIVIndex(ivIndex uint32, ivUpdateActive bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ivIndex = ivIndex
	n.ivUpdateActive = ivUpdateActive
	if n.logger != nil {
		n.logger.Info("iv index recovered",
			"ivIndex", ivIndex, "updateActive", ivUpdateActive)
	}
}

func (n *simNetwork) StartSecureBeacon(netKeyIndex uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.beaconing[netKeyIndex] = true
	if n.logger != nil {
		n.logger.Info("secure beaconing", "netKeyIndex", fmt.Sprintf("%#04x", netKeyIndex))
	}
}

// Init implements the proxy server hook.
func (n *simNetwork) Init(unicastAddress uint16) {
	if n.logger != nil {
		n.logger.Info("proxy serving", "unicastAddress", fmt.Sprintf("%#04x", unicastAddress))
	}
}

// NetworkIDs supplies subnet identifiers to the mDNS bearer.
func (n *simNetwork) NetworkIDs() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([][]byte, 0, len(n.networkKeys))
	for index := range n.subnets {
		record, ok := n.networkKeys[index]
		if !ok {
			continue
		}
		id := make([]byte, len(record.NetworkID))
		copy(id, record.NetworkID[:])
		ids = append(ids, id)
	}
	return ids
}

// simProvisioner fabricates provisioning outcomes for the demo. Subkeys
// come from an HKDF over a root secret so repeated runs with the same
// secret produce the same network.
type simProvisioner struct {
	root []byte

	mu       sync.Mutex
	nextSlot uint16
}

func newSimProvisioner(rootSecret string) (*simProvisioner, error) {
	root := []byte(rootSecret)
	if rootSecret == "" {
		root = make([]byte, 16)
		if _, err := rand.Read(root); err != nil {
			return nil, fmt.Errorf("failed to generate root secret: %w", err)
		}
	}
	return &simProvisioner{root: root}, nil
}

// derive fills out with HKDF output bound to the given label.
func (p *simProvisioner) derive(label string, out []byte) error {
	reader := hkdf.New(sha256.New, p.root, nil, []byte(label))
	if _, err := io.ReadFull(reader, out); err != nil {
		return fmt.Errorf("key derivation failed for %q: %w", label, err)
	}
	return nil
}

// networkKey derives a full network key record for one subnet.
func (p *simProvisioner) networkKey(netKeyIndex uint16, slot uint16) (*keystore.NetworkKeyRecord, error) {
	record := &keystore.NetworkKeyRecord{
		NetKeyIndex: netKeyIndex,
		Slot:        slot,
	}

	prefix := fmt.Sprintf("meshnode-sim net %#04x ", netKeyIndex)
	if err := p.derive(prefix+"root", record.Key[:]); err != nil {
		return nil, err
	}
	if err := p.derive(prefix+"identity", record.IdentityKey[:]); err != nil {
		return nil, err
	}
	if err := p.derive(prefix+"beacon", record.BeaconKey[:]); err != nil {
		return nil, err
	}
	if err := p.derive(prefix+"encryption", record.EncryptionKey[:]); err != nil {
		return nil, err
	}
	if err := p.derive(prefix+"privacy", record.PrivacyKey[:]); err != nil {
		return nil, err
	}
	if err := p.derive(prefix+"network-id", record.NetworkID[:]); err != nil {
		return nil, err
	}

	var nid [1]byte
	if err := p.derive(prefix+"nid", nid[:]); err != nil {
		return nil, err
	}
	record.NID = nid[0] & 0x7F

	return record, nil
}

// Provision fabricates the outcome a provisioner would deliver: a unicast
// address, a device key, and the first network key on slot 0.
func (p *simProvisioner) Provision(address uint16) (*provisioning.Outcome, error) {
	record, err := p.networkKey(0x0000, 0)
	if err != nil {
		return nil, err
	}

	outcome := &provisioning.Outcome{
		UnicastAddress: address,
		IVIndex:        0,
		Flags:          0,
		NetworkKey:     record,
	}
	if err := p.derive("meshnode-sim device key", outcome.DeviceKey[:]); err != nil {
		return nil, err
	}
	return outcome, nil
}

// AppKey derives an application key bound to a subnet. The caller stores
// and registers it.
func (p *simProvisioner) AppKey(netKeyIndex, appKeyIndex uint16) (*keystore.ApplicationKeyRecord, error) {
	p.mu.Lock()
	slot := p.nextSlot
	p.nextSlot++
	p.mu.Unlock()

	record := &keystore.ApplicationKeyRecord{
		AppKeyIndex: appKeyIndex,
		NetKeyIndex: netKeyIndex,
		Slot:        slot,
		AKF:         1,
	}
	prefix := fmt.Sprintf("meshnode-sim app %#04x ", appKeyIndex)
	if err := p.derive(prefix+"key", record.Key[:]); err != nil {
		return nil, err
	}

	var aid [1]byte
	if err := p.derive(prefix+"aid", aid[:]); err != nil {
		return nil, err
	}
	record.AID = aid[0] & 0x3F

	return record, nil
}
