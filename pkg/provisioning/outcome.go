package provisioning

import "github.com/meshnode-protocol/meshnode-go/pkg/keystore"

// Flag bits carried in an Outcome's Flags field, as received during the
// handshake.
const (
	// FlagKeyRefresh marks a key refresh in progress on the first
	// subnet.
	FlagKeyRefresh = 0x01

	// FlagIVUpdateActive marks an IV index update in progress.
	FlagIVUpdateActive = 0x02
)

// Outcome is the result of one successful provisioning handshake.
//
// It is produced exactly once per handshake and consumed exactly once by
// Applier.Apply. It is not persisted as a unit: RecordStore persists the
// identity fields, the key store persists the network key.
type Outcome struct {
	// UnicastAddress is the primary element's new address.
	UnicastAddress uint16

	// DeviceKey secures device-specific operations.
	DeviceKey [16]byte

	// IVIndex is the network-wide replay-protection counter at the time
	// of provisioning.
	IVIndex uint32

	// Flags holds the key-refresh and IV-update bits.
	Flags uint8

	// NetworkKey is the first network key, if the provisioner supplied
	// one. Nil when the outcome was recovered from the durable store;
	// keys are restored separately by the key store's load scan.
	NetworkKey *keystore.NetworkKeyRecord
}

// IVUpdateActive reports whether the IV-update-active flag bit is set.
func (o *Outcome) IVUpdateActive() bool {
	return o.Flags&FlagIVUpdateActive != 0
}

// KeyRefresh reports whether the key-refresh flag bit is set.
func (o *Outcome) KeyRefresh() bool {
	return o.Flags&FlagKeyRefresh != 0
}
