package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meshnode-protocol/meshnode-go/pkg/identity"
	"github.com/meshnode-protocol/meshnode-go/pkg/keystore"
	"github.com/meshnode-protocol/meshnode-go/pkg/model"
	"github.com/meshnode-protocol/meshnode-go/pkg/provisioning"
)

// Controller owns the node's lifecycle state and coordinates the key
// store, identity provider, record applier and advertising bearer.
//
// All controller state is held here rather than in package globals so a
// process can host multiple nodes and tests can inject collaborators.
type Controller struct {
	mu sync.Mutex

	config Config
	logger *slog.Logger

	state    LifecycleState
	node     *model.Node
	keys     *keystore.Store
	records  *provisioning.RecordStore
	identity *identity.Provider
	applier  *provisioning.Applier

	observer Observer

	// Event loop, active between Start and Stop.
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	events  chan Event
	done    chan struct{}
}

// NewController creates a lifecycle controller from its configuration.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}

	nodeModel := config.Node
	if nodeModel == nil {
		nodeModel = model.NewNode()
	}

	// The mandatory foundation models go onto the primary element once
	// per node. A supplied node may already carry them.
	if err := model.SetupDefaultModels(nodeModel); err != nil &&
		!errors.Is(err, model.ErrDuplicateModel) {
		return nil, err
	}

	provider := config.Identity
	if provider == nil {
		provider = identity.NewProvider(identity.NewCryptoSource(nil))
	}

	c := &Controller{
		config:   config,
		logger:   config.Logger,
		state:    StateUninitialized,
		node:     nodeModel,
		keys:     keystore.NewStore(config.Store, config.Logger),
		records:  provisioning.NewRecordStore(config.Store, config.Logger),
		identity: provider,
	}
	c.applier = provisioning.NewApplier(provisioning.ApplierConfig{
		Node:       nodeModel,
		IVTracker:  config.IVTracker,
		KeyTable:   config.KeyTable,
		Beacons:    config.Beacons,
		Proxy:      config.Proxy,
		Advertiser: config.Advertiser,
		Logger:     config.Logger,
	})

	// If the node model was handed over with a UUID, seed the provider
	// so no generation is ever requested.
	if u, ok := nodeModel.DeviceUUID(); ok {
		provider.Set(u)
	}

	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Node returns the access-layer node model.
func (c *Controller) Node() *model.Node {
	return c.node
}

// Keys exposes the key persistence operations for configuration-server
// logic outside the controller (store/delete/load-all/delete-all per key
// kind).
func (c *Controller) Keys() *keystore.Store {
	return c.keys
}

// Records exposes the provisioning record store; a factory-reset
// collaborator uses it to wipe the node's identity.
func (c *Controller) Records() *provisioning.RecordStore {
	return c.records
}

// SetObserver registers the external event observer. Events are
// forwarded after internal handling. Only one observer is held; passing
// nil unregisters.
func (c *Controller) SetObserver(observer Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = observer
}

// Start launches the event loop feeding HandleEvent from the Dispatch
// queue.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.events = make(chan Event, c.config.QueueSize)
	c.done = make(chan struct{})
	c.started = true

	go c.run(c.runCtx, c.events, c.done)
	return nil
}

// Stop halts the event loop and all advertising. Pending queued events
// are dropped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	cancel := c.cancel
	done := c.done
	c.started = false
	c.mu.Unlock()

	cancel()
	<-done

	c.config.Advertiser.StopAll()
	return nil
}

// Dispatch enqueues an event for the event loop. Events are handled in
// dispatch order.
func (c *Controller) Dispatch(event Event) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	events := c.events
	runCtx := c.runCtx
	c.mu.Unlock()

	select {
	case events <- event:
		return nil
	case <-runCtx.Done():
		return ErrNotStarted
	}
}

// run drains the event queue one event at a time.
func (c *Controller) run(ctx context.Context, events <-chan Event, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if err := c.HandleEvent(event); err != nil {
				c.debugLog("event handling failed",
					"event", event.Type.String(), "error", err)
			}
		}
	}
}

// HandleEvent processes one event to completion. Events are serialized:
// a handler finishes before the next event is taken, and nothing here
// re-enters the controller.
func (c *Controller) HandleEvent(event Event) error {
	c.mu.Lock()

	var err error
	requestIdentity := false

	switch event.Type {
	case EventSystemReady:
		requestIdentity, err = c.handleSystemReady()

	case EventConnectionUp:
		// A provisioning session may be starting over this bearer;
		// discovery advertising stops regardless of state.
		err = c.config.Advertiser.StopUnprovisioned()

	case EventConnectionDown:
		requestIdentity, err = c.handleConnectionDown()

	case EventProvisioningComplete:
		err = c.handleProvisioningComplete(event.Outcome)

	default:
		// Not interpreted here; forwarded below.
	}

	observer := c.observer
	c.mu.Unlock()

	// The identity request runs outside the lock: with a cached value
	// the completion fires synchronously and re-enters the controller.
	if requestIdentity {
		c.identity.GetOrCreate(c.identityReady)
	}

	if observer != nil {
		observer(event)
	}
	return err
}

// handleSystemReady recovers persisted state and enters the appropriate
// lifecycle state. Caller holds c.mu.
func (c *Controller) handleSystemReady() (requestIdentity bool, err error) {
	if c.state != StateUninitialized {
		c.debugLog("ignoring repeated system-ready", "state", c.state.String())
		return false, nil
	}

	outcome, found := c.records.Load()
	if !found {
		c.state = StateUnprovisioned
		c.debugLog("no provisioning record, entering discovery")
		return true, nil
	}

	c.state = StateProvisioned
	c.debugLog("recovered provisioning record",
		"unicastAddress", fmt.Sprintf("%#04x", outcome.UnicastAddress),
		"ivIndex", outcome.IVIndex)

	// Restore the key records into the live table. A failed pass leaves
	// the keys restored so far registered; the node still comes up.
	if _, loadErr := c.keys.LoadNetworkKeys(c.config.KeyTable); loadErr != nil {
		c.debugLog("network key restore incomplete", "error", loadErr)
	}
	if _, loadErr := c.keys.LoadAppKeys(c.config.KeyTable); loadErr != nil {
		c.debugLog("app key restore incomplete", "error", loadErr)
	}

	if applyErr := c.applier.Apply(c.handlerContext(), outcome); applyErr != nil {
		return false, applyErr
	}

	// Resume provisioned advertising. Idempotent if the applier's proxy
	// step already started it.
	if advErr := c.config.Advertiser.AdvertiseNetworkID(c.handlerContext()); advErr != nil {
		return false, advErr
	}
	return false, nil
}

// handleConnectionDown restores the advertising mode for the current
// state. Caller holds c.mu.
func (c *Controller) handleConnectionDown() (requestIdentity bool, err error) {
	switch c.state {
	case StateUnprovisioned:
		// Identity completion (re-)starts discovery advertising; with a
		// cached UUID that happens synchronously on this event.
		return true, nil
	case StateProvisioned:
		return false, c.config.Advertiser.AdvertiseNetworkID(c.handlerContext())
	default:
		return false, nil
	}
}

// handleProvisioningComplete persists and applies the handshake outcome.
// Caller holds c.mu.
func (c *Controller) handleProvisioningComplete(outcome *provisioning.Outcome) error {
	if c.state == StateProvisioned {
		// The handshake collaborator fires this once; a second event is
		// a broken contract, not a state to recover from.
		return ErrAlreadyProvisioned
	}
	if outcome == nil {
		return ErrMissingOutcome
	}

	// Persist before applying: a node that cannot make its keys durable
	// must not present itself as provisioned.
	if err := c.records.Store(outcome); err != nil {
		return err
	}
	if outcome.NetworkKey != nil {
		if err := c.keys.StoreNetworkKey(outcome.NetworkKey); err != nil {
			return err
		}
	}

	if err := c.applier.Apply(c.handlerContext(), outcome); err != nil {
		return err
	}

	// Switch advertising: discovery off, node identity on, scoped to
	// the newly joined network.
	if err := c.config.Advertiser.StopUnprovisioned(); err != nil {
		return err
	}
	if outcome.NetworkKey != nil {
		if err := c.config.Advertiser.AdvertiseNodeIdentity(
			c.handlerContext(), outcome.NetworkKey.NetKeyIndex); err != nil {
			return err
		}
	}

	c.state = StateProvisioned
	c.debugLog("provisioning complete",
		"unicastAddress", fmt.Sprintf("%#04x", outcome.UnicastAddress))
	return nil
}

// identityReady receives the device UUID from the identity provider and
// starts discovery advertising if the node is still unprovisioned.
func (c *Controller) identityReady(u identity.UUID, err error) {
	if err != nil {
		c.debugLog("device UUID generation failed", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUnprovisioned {
		return
	}

	c.node.SetDeviceUUID(u)
	c.debugLog("device UUID available", "uuid", u.String())

	if advErr := c.config.Advertiser.AdvertiseUnprovisioned(c.handlerContext(), u); advErr != nil {
		c.debugLog("failed to start unprovisioned advertising", "error", advErr)
	}
}

// handlerContext returns the context advertising calls run under.
// Caller holds c.mu.
func (c *Controller) handlerContext() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

// debugLog logs a debug message if logging is enabled.
func (c *Controller) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
