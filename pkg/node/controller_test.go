package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meshnode-protocol/meshnode-go/pkg/identity"
	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/model"
	"github.com/meshnode-protocol/meshnode-go/pkg/provisioning"
	"github.com/meshnode-protocol/meshnode-go/pkg/tagstore"
)

// mockAdvertiser records advertising mode switches.
type mockAdvertiser struct {
	mu sync.Mutex

	unprovisionedStarts int
	unprovisionedStops  int
	networkIDStarts     int
	nodeIdentityStarts  int
	nodeIdentityIndex   uint16
	lastUUID            identity.UUID
}

func newMockAdvertiser() *mockAdvertiser { return &mockAdvertiser{} }

func (m *mockAdvertiser) AdvertiseUnprovisioned(_ context.Context, u identity.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unprovisionedStarts++
	m.lastUUID = u
	return nil
}

func (m *mockAdvertiser) StopUnprovisioned() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unprovisionedStops++
	return nil
}

func (m *mockAdvertiser) AdvertiseNetworkID(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkIDStarts++
	return nil
}

func (m *mockAdvertiser) StopNetworkID() error { return nil }

func (m *mockAdvertiser) AdvertiseNodeIdentity(_ context.Context, netKeyIndex uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeIdentityStarts++
	m.nodeIdentityIndex = netKeyIndex
	return nil
}

func (m *mockAdvertiser) StopNodeIdentity() error { return nil }
func (m *mockAdvertiser) StopAll()                {}

func (m *mockAdvertiser) snapshot() mockAdvertiser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mockAdvertiser{
		unprovisionedStarts: m.unprovisionedStarts,
		unprovisionedStops:  m.unprovisionedStops,
		networkIDStarts:     m.networkIDStarts,
		nodeIdentityStarts:  m.nodeIdentityStarts,
		nodeIdentityIndex:   m.nodeIdentityIndex,
		lastUUID:            m.lastUUID,
	}
}

type mockIVTracker struct {
	ivIndex      uint32
	updateActive bool
}

func (m *mockIVTracker) RecoverIVIndex(ivIndex uint32, updateActive bool) {
	m.ivIndex = ivIndex
	m.updateActive = updateActive
}

type mockKeyTable struct {
	networkKeys []*keystore.NetworkKeyRecord
	appKeys     []*keystore.ApplicationKeyRecord
	subnets     []uint16
}

func (m *mockKeyTable) AddNetworkKey(r *keystore.NetworkKeyRecord) error {
	m.networkKeys = append(m.networkKeys, r)
	return nil
}

func (m *mockKeyTable) AddAppKey(r *keystore.ApplicationKeyRecord) error {
	m.appKeys = append(m.appKeys, r)
	return nil
}

func (m *mockKeyTable) SetupSubnet(netKeyIndex uint16) {
	m.subnets = append(m.subnets, netKeyIndex)
}

type mockBeacons struct {
	started []uint16
}

func (m *mockBeacons) StartSecureBeacon(netKeyIndex uint16) {
	m.started = append(m.started, netKeyIndex)
}

// fixedSource returns a fixed UUID synchronously.
type fixedSource struct {
	uuid  identity.UUID
	calls int
}

func (s *fixedSource) GenerateUUID(complete func(identity.UUID, error)) {
	s.calls++
	complete(s.uuid, nil)
}

// testHarness bundles a controller with its mock collaborators.
type testHarness struct {
	controller *Controller
	store      *tagstore.MemoryStore
	advertiser *mockAdvertiser
	ivTracker  *mockIVTracker
	keyTable   *mockKeyTable
	beacons    *mockBeacons
	source     *fixedSource
}

func newTestHarness(t *testing.T, store *tagstore.MemoryStore) *testHarness {
	t.Helper()

	if store == nil {
		store = tagstore.NewMemoryStore()
	}
	h := &testHarness{
		store:      store,
		advertiser: newMockAdvertiser(),
		ivTracker:  &mockIVTracker{},
		keyTable:   &mockKeyTable{},
		beacons:    &mockBeacons{},
		source:     &fixedSource{uuid: identity.UUID{0xDE, 0xAD, 0xBE, 0xEF}},
	}

	config := DefaultConfig()
	config.Store = store
	config.Advertiser = h.advertiser
	config.KeyTable = h.keyTable
	config.IVTracker = h.ivTracker
	config.Beacons = h.beacons
	config.Identity = identity.NewProvider(h.source)

	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	h.controller = controller
	return h
}

func testOutcome() *provisioning.Outcome {
	outcome := &provisioning.Outcome{
		UnicastAddress: 0x0003,
		IVIndex:        7,
		Flags:          0x02,
		NetworkKey: &keystore.NetworkKeyRecord{
			NetKeyIndex: 0x0011,
			Slot:        0,
			NID:         0x5A,
		},
	}
	for i := range outcome.DeviceKey {
		outcome.DeviceKey[i] = byte(i)
	}
	return outcome
}

func TestConfigValidation(t *testing.T) {
	config := DefaultConfig()
	if _, err := NewController(config); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewController with empty config = %v, want ErrInvalidConfig", err)
	}
}

func TestControllerInstallsDefaultModels(t *testing.T) {
	h := newTestHarness(t, nil)

	// The node was created by the controller; the mandatory foundation
	// models must already sit on the primary element.
	primary := h.controller.Node().PrimaryElement()
	if !primary.HasModel(model.SIGModelID(model.ConfigurationServerModelID)) {
		t.Error("Configuration Server not installed on primary element")
	}
	if !primary.HasModel(model.SIGModelID(model.HealthServerModelID)) {
		t.Error("Health Server not installed on primary element")
	}
	if count := primary.ModelCount(); count != 2 {
		t.Errorf("primary element model count = %d, want 2", count)
	}
}

func TestControllerAcceptsPreparedNode(t *testing.T) {
	prepared := model.NewNode()
	if err := model.SetupDefaultModels(prepared); err != nil {
		t.Fatalf("SetupDefaultModels failed: %v", err)
	}

	config := DefaultConfig()
	config.Store = tagstore.NewMemoryStore()
	config.Advertiser = newMockAdvertiser()
	config.KeyTable = &mockKeyTable{}
	config.IVTracker = &mockIVTracker{}
	config.Beacons = &mockBeacons{}
	config.Node = prepared

	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("NewController with a prepared node = %v, want nil", err)
	}
	if count := controller.Node().PrimaryElement().ModelCount(); count != 2 {
		t.Errorf("primary element model count = %d, want 2 (no duplicates)", count)
	}
}

func TestSystemReadyWithoutRecord(t *testing.T) {
	h := newTestHarness(t, nil)

	if h.controller.State() != StateUninitialized {
		t.Fatalf("initial state = %s", h.controller.State())
	}

	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if h.controller.State() != StateUnprovisioned {
		t.Errorf("state = %s, want UNPROVISIONED", h.controller.State())
	}

	adv := h.advertiser.snapshot()
	if adv.unprovisionedStarts != 1 {
		t.Errorf("unprovisioned advertising starts = %d, want 1", adv.unprovisionedStarts)
	}
	if adv.lastUUID != h.source.uuid {
		t.Errorf("advertised UUID = %v, want %v", adv.lastUUID, h.source.uuid)
	}
	if adv.networkIDStarts != 0 {
		t.Error("network-ID advertising started while unprovisioned")
	}

	// UUID cached on the node model.
	if u, ok := h.controller.Node().DeviceUUID(); !ok || u != h.source.uuid {
		t.Error("device UUID not installed on node model")
	}
}

func TestSystemReadyRecoversProvisionedState(t *testing.T) {
	store := tagstore.NewMemoryStore()

	// A prior process lifetime: provision and persist.
	prior := newTestHarness(t, store)
	if err := prior.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := prior.controller.HandleEvent(Event{
		Type:    EventProvisioningComplete,
		Outcome: testOutcome(),
	}); err != nil {
		t.Fatalf("provisioning failed: %v", err)
	}

	// Restart: a fresh controller over the same durable store.
	h := newTestHarness(t, store)
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if h.controller.State() != StateProvisioned {
		t.Fatalf("state = %s, want PROVISIONED", h.controller.State())
	}

	// Network layer reflects the persisted address and IV state.
	if h.ivTracker.ivIndex != 7 || !h.ivTracker.updateActive {
		t.Errorf("iv tracker = (%d, %v), want (7, true)",
			h.ivTracker.ivIndex, h.ivTracker.updateActive)
	}
	if h.controller.Node().PrimaryAddress() != 0x0003 {
		t.Errorf("primary address = %#04x, want 0x0003",
			h.controller.Node().PrimaryAddress())
	}

	// The network key was restored from the key store scan.
	if len(h.keyTable.networkKeys) != 1 || h.keyTable.networkKeys[0].NetKeyIndex != 0x0011 {
		t.Errorf("restored network keys = %v", h.keyTable.networkKeys)
	}

	adv := h.advertiser.snapshot()
	if adv.networkIDStarts == 0 {
		t.Error("network-ID advertising not resumed")
	}
	if adv.unprovisionedStarts != 0 {
		t.Error("unprovisioned advertising started on a provisioned node")
	}
	if h.source.calls != 0 {
		t.Error("device UUID generated for a provisioned node")
	}
}

func TestRepeatedSystemReadyIsIgnored(t *testing.T) {
	h := newTestHarness(t, nil)

	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("second system-ready = %v, want nil", err)
	}
	if h.source.calls != 1 {
		t.Errorf("identity generated %d times, want 1", h.source.calls)
	}
}

func TestProvisioningComplete(t *testing.T) {
	h := newTestHarness(t, nil)
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	outcome := testOutcome()
	if err := h.controller.HandleEvent(Event{
		Type:    EventProvisioningComplete,
		Outcome: outcome,
	}); err != nil {
		t.Fatalf("provisioning failed: %v", err)
	}

	if h.controller.State() != StateProvisioned {
		t.Errorf("state = %s, want PROVISIONED", h.controller.State())
	}

	// Identity fields applied.
	if h.controller.Node().PrimaryAddress() != 0x0003 {
		t.Error("unicast address not applied")
	}
	if h.ivTracker.ivIndex != 7 || !h.ivTracker.updateActive {
		t.Error("iv index not recovered")
	}

	// First subnet live: key registered, subnet context, beacon.
	if len(h.keyTable.networkKeys) != 1 {
		t.Fatalf("registered %d network keys, want 1", len(h.keyTable.networkKeys))
	}
	if len(h.beacons.started) != 1 || h.beacons.started[0] != 0x0011 {
		t.Errorf("beacons started for %v, want [0x0011]", h.beacons.started)
	}

	// Advertising switched to node-identity mode.
	adv := h.advertiser.snapshot()
	if adv.nodeIdentityStarts != 1 || adv.nodeIdentityIndex != 0x0011 {
		t.Errorf("node-identity advertising = (%d, %#04x), want (1, 0x0011)",
			adv.nodeIdentityStarts, adv.nodeIdentityIndex)
	}
	if adv.unprovisionedStops == 0 {
		t.Error("unprovisioned advertising not stopped")
	}

	// Persisted: record and key present in the durable store.
	records := provisioning.NewRecordStore(h.store, nil)
	if _, found := records.Load(); !found {
		t.Error("provisioning record not persisted")
	}
	if _, ok := h.store.GetTag(keystore.NetworkKeyTag(0)); !ok {
		t.Error("network key not persisted")
	}
}

func TestProvisioningCompleteIsOneShot(t *testing.T) {
	h := newTestHarness(t, nil)
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := h.controller.HandleEvent(Event{
		Type: EventProvisioningComplete, Outcome: testOutcome(),
	}); err != nil {
		t.Fatalf("provisioning failed: %v", err)
	}

	before := len(h.keyTable.networkKeys)
	err := h.controller.HandleEvent(Event{
		Type: EventProvisioningComplete, Outcome: testOutcome(),
	})
	if !errors.Is(err, ErrAlreadyProvisioned) {
		t.Errorf("second provisioning-complete = %v, want ErrAlreadyProvisioned", err)
	}
	if len(h.keyTable.networkKeys) != before {
		t.Error("second provisioning-complete registered a duplicate key")
	}
}

func TestProvisioningCompleteWithoutOutcome(t *testing.T) {
	h := newTestHarness(t, nil)
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	err := h.controller.HandleEvent(Event{Type: EventProvisioningComplete})
	if !errors.Is(err, ErrMissingOutcome) {
		t.Errorf("HandleEvent = %v, want ErrMissingOutcome", err)
	}
	if h.controller.State() != StateUnprovisioned {
		t.Error("state changed on a rejected event")
	}
}

func TestConnectionEventsWhileUnprovisioned(t *testing.T) {
	h := newTestHarness(t, nil)
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	// A connection pauses discovery; discovery resumes on disconnect.
	if err := h.controller.HandleEvent(Event{Type: EventConnectionUp}); err != nil {
		t.Fatalf("connection-up failed: %v", err)
	}
	adv := h.advertiser.snapshot()
	if adv.unprovisionedStops != 1 {
		t.Errorf("unprovisioned stops = %d, want 1", adv.unprovisionedStops)
	}

	// Idempotent when issued twice in a row.
	if err := h.controller.HandleEvent(Event{Type: EventConnectionUp}); err != nil {
		t.Fatalf("repeated connection-up failed: %v", err)
	}

	if err := h.controller.HandleEvent(Event{Type: EventConnectionDown}); err != nil {
		t.Fatalf("connection-down failed: %v", err)
	}
	adv = h.advertiser.snapshot()
	if adv.unprovisionedStarts != 2 { // once at system-ready, once on disconnect
		t.Errorf("unprovisioned starts = %d, want 2", adv.unprovisionedStarts)
	}
	if adv.networkIDStarts != 0 {
		t.Error("network-ID advertising started while unprovisioned")
	}
	// No duplicate generation; the cached UUID is reused.
	if h.source.calls != 1 {
		t.Errorf("identity generated %d times, want 1", h.source.calls)
	}
}

func TestConnectionDownWhileProvisioned(t *testing.T) {
	h := newTestHarness(t, nil)
	if err := h.controller.HandleEvent(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := h.controller.HandleEvent(Event{
		Type: EventProvisioningComplete, Outcome: testOutcome(),
	}); err != nil {
		t.Fatalf("provisioning failed: %v", err)
	}

	before := h.advertiser.snapshot()
	if err := h.controller.HandleEvent(Event{Type: EventConnectionDown}); err != nil {
		t.Fatalf("connection-down failed: %v", err)
	}

	adv := h.advertiser.snapshot()
	if adv.networkIDStarts != before.networkIDStarts+1 {
		t.Error("network-ID advertising not resumed on disconnect")
	}
	if adv.unprovisionedStarts != before.unprovisionedStarts {
		t.Error("unprovisioned advertising resumed on a provisioned node")
	}
}

func TestObserverReceivesAllEvents(t *testing.T) {
	h := newTestHarness(t, nil)

	var seen []EventType
	h.controller.SetObserver(func(event Event) {
		seen = append(seen, event.Type)
	})

	events := []Event{
		{Type: EventSystemReady},
		{Type: EventConnectionUp},
		{Type: EventType(0x40), Payload: "uninterpreted"}, // forwarded untouched
		{Type: EventConnectionDown},
	}
	for _, event := range events {
		_ = h.controller.HandleEvent(event)
	}

	if len(seen) != len(events) {
		t.Fatalf("observer saw %d events, want %d", len(seen), len(events))
	}
	for i, event := range events {
		if seen[i] != event.Type {
			t.Errorf("event %d: observer saw %v, want %v", i, seen[i], event.Type)
		}
	}
}

func TestDispatchDrivesEventLoop(t *testing.T) {
	h := newTestHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.controller.Dispatch(Event{Type: EventSystemReady}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Dispatch before Start = %v, want ErrNotStarted", err)
	}

	if err := h.controller.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.controller.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	handled := make(chan struct{})
	h.controller.SetObserver(func(Event) {
		select {
		case handled <- struct{}{}:
		default:
		}
	})

	if err := h.controller.Dispatch(Event{Type: EventSystemReady}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("event not handled by the loop")
	}

	if h.controller.State() != StateUnprovisioned {
		t.Errorf("state = %s, want UNPROVISIONED", h.controller.State())
	}

	if err := h.controller.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.controller.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop = %v, want ErrNotStarted", err)
	}
}

func TestLifecycleStateStrings(t *testing.T) {
	cases := map[LifecycleState]string{
		StateUninitialized:   "UNINITIALIZED",
		StateUnprovisioned:   "UNPROVISIONED",
		StateProvisioned:     "PROVISIONED",
		LifecycleState(0xFF): "UNKNOWN",
	}
	for state, want := range cases {
		if state.String() != want {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), want)
		}
	}
}
