package model

// ConfigurationServerContext is the per-instance state block of the
// Configuration Server model. Its fields are controlled remotely by a
// configuration client.
type ConfigurationServerContext struct {
	// Heartbeat publication state.
	HeartbeatDestination uint16
	HeartbeatPeriodLog   uint8
	HeartbeatCountLog    uint8
	HeartbeatTTL         uint8
	HeartbeatNetKeyIndex uint16
}

// HealthServerContext is the per-instance state block of the Health
// Server model.
type HealthServerContext struct {
	// FastPeriodDivisor scales the publish period while faults are
	// present.
	FastPeriodDivisor uint8

	// TestID is the most recently invoked self-test.
	TestID uint8

	// CurrentFaults holds the active fault codes.
	CurrentFaults []uint8

	// RegisteredFaults holds faults since the last clear.
	RegisteredFaults []uint8
}

// SetupDefaultModels registers the two mandatory foundation models, the
// Configuration Server and the Health Server, on the node's primary
// element, each with its own per-instance state block.
//
// This runs once during node initialization. A second call returns
// ErrDuplicateModel and registers nothing.
func SetupDefaultModels(node *Node) error {
	primary := node.PrimaryElement()

	configServer := NewModel(
		SIGModelID(ConfigurationServerModelID),
		&ConfigurationServerContext{},
	)
	if err := primary.AddModel(configServer); err != nil {
		return err
	}

	healthServer := NewModel(
		SIGModelID(HealthServerModelID),
		&HealthServerContext{},
	)
	return primary.AddModel(healthServer)
}
