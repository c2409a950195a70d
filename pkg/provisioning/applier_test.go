package provisioning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshnode-protocol/meshnode-go/pkg/bearer"
	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/model"
)

type fakeIVTracker struct {
	ivIndex      uint32
	updateActive bool
	recovered    bool
}

func (f *fakeIVTracker) RecoverIVIndex(ivIndex uint32, updateActive bool) {
	f.ivIndex = ivIndex
	f.updateActive = updateActive
	f.recovered = true
}

type fakeKeyTable struct {
	networkKeys []*keystore.NetworkKeyRecord
	subnets     []uint16
}

func (f *fakeKeyTable) AddNetworkKey(r *keystore.NetworkKeyRecord) error {
	f.networkKeys = append(f.networkKeys, r)
	return nil
}

func (f *fakeKeyTable) AddAppKey(*keystore.ApplicationKeyRecord) error { return nil }

func (f *fakeKeyTable) SetupSubnet(netKeyIndex uint16) {
	f.subnets = append(f.subnets, netKeyIndex)
}

type fakeBeacons struct {
	started []uint16
}

func (f *fakeBeacons) StartSecureBeacon(netKeyIndex uint16) {
	f.started = append(f.started, netKeyIndex)
}

type fakeProxy struct {
	boundAddress uint16
	initialized  bool
}

func (f *fakeProxy) Init(unicastAddress uint16) {
	f.boundAddress = unicastAddress
	f.initialized = true
}

// recordingAdvertiser counts mode switches.
type recordingAdvertiser struct {
	bearer.NopAdvertiser
	networkIDStarts int
}

func (r *recordingAdvertiser) AdvertiseNetworkID(context.Context) error {
	r.networkIDStarts++
	return nil
}

var _ bearer.Advertiser = (*recordingAdvertiser)(nil)

func TestApplyRecoversIVAndIdentity(t *testing.T) {
	node := model.NewNode()
	iv := &fakeIVTracker{}
	applier := NewApplier(ApplierConfig{
		Node:      node,
		IVTracker: iv,
		KeyTable:  &fakeKeyTable{},
		Beacons:   &fakeBeacons{},
	})

	outcome := &Outcome{
		UnicastAddress: 0x0003,
		IVIndex:        7,
		Flags:          0x02, // update-active bit
	}
	outcome.DeviceKey[0] = 0xD0

	require.NoError(t, applier.Apply(context.Background(), outcome))

	assert.True(t, iv.recovered)
	assert.EqualValues(t, 7, iv.ivIndex)
	assert.True(t, iv.updateActive)
	assert.EqualValues(t, 0x0003, node.PrimaryAddress())

	key, ok := node.DeviceKey()
	require.True(t, ok)
	assert.Equal(t, outcome.DeviceKey, key)
}

func TestApplyRegistersFirstSubnet(t *testing.T) {
	node := model.NewNode()
	table := &fakeKeyTable{}
	beacons := &fakeBeacons{}
	applier := NewApplier(ApplierConfig{
		Node:      node,
		IVTracker: &fakeIVTracker{},
		KeyTable:  table,
		Beacons:   beacons,
	})

	networkKey := &keystore.NetworkKeyRecord{NetKeyIndex: 0x0123, Slot: 0}
	outcome := &Outcome{
		UnicastAddress: 0x0100,
		NetworkKey:     networkKey,
	}

	require.NoError(t, applier.Apply(context.Background(), outcome))

	require.Len(t, table.networkKeys, 1)
	assert.Same(t, networkKey, table.networkKeys[0])
	assert.Equal(t, []uint16{0x0123}, table.subnets)
	assert.Equal(t, []uint16{0x0123}, beacons.started)
	assert.NotEmpty(t, networkKey.NetworkIDAdvertisement,
		"advertising payload must be derived during apply")
}

func TestApplyWithoutNetworkKey(t *testing.T) {
	table := &fakeKeyTable{}
	beacons := &fakeBeacons{}
	applier := NewApplier(ApplierConfig{
		Node:      model.NewNode(),
		IVTracker: &fakeIVTracker{},
		KeyTable:  table,
		Beacons:   beacons,
	})

	require.NoError(t, applier.Apply(context.Background(), &Outcome{UnicastAddress: 0x0007}))

	assert.Empty(t, table.networkKeys)
	assert.Empty(t, beacons.started)
}

func TestApplyInitializesProxy(t *testing.T) {
	proxy := &fakeProxy{}
	advertiser := &recordingAdvertiser{}
	applier := NewApplier(ApplierConfig{
		Node:       model.NewNode(),
		IVTracker:  &fakeIVTracker{},
		KeyTable:   &fakeKeyTable{},
		Beacons:    &fakeBeacons{},
		Proxy:      proxy,
		Advertiser: advertiser,
	})

	require.NoError(t, applier.Apply(context.Background(), &Outcome{UnicastAddress: 0x0042}))

	assert.True(t, proxy.initialized)
	assert.EqualValues(t, 0x0042, proxy.boundAddress)
	assert.Equal(t, 1, advertiser.networkIDStarts)
}

func TestApplySkipsProxyWhenDisabled(t *testing.T) {
	advertiser := &recordingAdvertiser{}
	applier := NewApplier(ApplierConfig{
		Node:       model.NewNode(),
		IVTracker:  &fakeIVTracker{},
		KeyTable:   &fakeKeyTable{},
		Beacons:    &fakeBeacons{},
		Advertiser: advertiser, // advertiser alone doesn't enable proxy serving
	})

	require.NoError(t, applier.Apply(context.Background(), &Outcome{}))
	assert.Zero(t, advertiser.networkIDStarts)
}
