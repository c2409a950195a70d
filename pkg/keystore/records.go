package keystore

import (
	"encoding/binary"
	"errors"
)

// Record errors.
var (
	ErrBadRecordSize = errors.New("unexpected record size")
	ErrSlotRange     = errors.New("slot index out of range")
)

// Capacity limits for the two key kinds. Slots are dense in [0, max).
const (
	MaxNetworkKeys = 16
	MaxAppKeys     = 32
)

// Serialized record sizes. Loads accept exactly these sizes and nothing
// else.
const (
	NetworkKeyRecordSize = 94
	AppKeyRecordSize     = 25
)

// NetworkKeyRecord is one subnet's root key and its derived key set.
//
// NetKeyIndex is the protocol-visible index (sparse). Slot is the dense
// storage index and is never protocol-visible; it is assigned by the live
// key table's allocator. The derived fields (identity, beacon, encryption,
// privacy keys, network ID, NID) are produced by the mesh key-derivation
// layer from Key and are persisted alongside it so a restart does not need
// to re-run the derivation.
type NetworkKeyRecord struct {
	NetKeyIndex uint16
	Slot        uint16
	Version     uint8

	// Root key, as received from the provisioner or a configuration
	// client.
	Key [16]byte

	// k1 derivations.
	IdentityKey [16]byte
	BeaconKey   [16]byte

	// k3 derivation.
	NetworkID [8]byte

	// k2 derivations.
	NID           uint8
	EncryptionKey [16]byte
	PrivacyKey    [16]byte

	// NetworkIDAdvertisement is the cached advertising payload for
	// network-identifier advertising. Not persisted; rebuilt on load.
	NetworkIDAdvertisement []byte
}

// Encode serializes the record into its fixed binary layout.
func (r *NetworkKeyRecord) Encode() []byte {
	buf := make([]byte, NetworkKeyRecordSize)
	binary.LittleEndian.PutUint16(buf[0:2], r.NetKeyIndex)
	binary.LittleEndian.PutUint16(buf[2:4], r.Slot)
	buf[4] = r.Version
	buf[5] = r.NID
	copy(buf[6:22], r.Key[:])
	copy(buf[22:38], r.IdentityKey[:])
	copy(buf[38:54], r.BeaconKey[:])
	copy(buf[54:62], r.NetworkID[:])
	copy(buf[62:78], r.EncryptionKey[:])
	copy(buf[78:94], r.PrivacyKey[:])
	return buf
}

// DecodeNetworkKeyRecord parses a fixed-layout network key record.
// Returns ErrBadRecordSize unless data is exactly NetworkKeyRecordSize
// bytes.
func DecodeNetworkKeyRecord(data []byte) (*NetworkKeyRecord, error) {
	if len(data) != NetworkKeyRecordSize {
		return nil, ErrBadRecordSize
	}

	r := &NetworkKeyRecord{
		NetKeyIndex: binary.LittleEndian.Uint16(data[0:2]),
		Slot:        binary.LittleEndian.Uint16(data[2:4]),
		Version:     data[4],
		NID:         data[5],
	}
	copy(r.Key[:], data[6:22])
	copy(r.IdentityKey[:], data[22:38])
	copy(r.BeaconKey[:], data[38:54])
	copy(r.NetworkID[:], data[54:62])
	copy(r.EncryptionKey[:], data[62:78])
	copy(r.PrivacyKey[:], data[78:94])
	return r, nil
}

// EnsureAdvertisement builds the cached network-identifier advertising
// payload if it has not been built yet. The payload is derived from the
// network ID and never persisted.
func (r *NetworkKeyRecord) EnsureAdvertisement() {
	if len(r.NetworkIDAdvertisement) == 0 {
		r.NetworkIDAdvertisement = buildNetworkIDAdvertisement(r.NetworkID)
	}
}

// ApplicationKeyRecord is one access-layer key, bound to a network key.
//
// AppKeyIndex is the protocol-visible index (sparse); Slot is the dense
// storage index. AID is the 6-bit application key identifier carried in
// secured messages. AKF indicates the key derivation function flag used
// when securing with this key.
type ApplicationKeyRecord struct {
	AppKeyIndex uint16
	NetKeyIndex uint16
	Slot        uint16
	AID         uint8
	AKF         uint8
	Version     uint8
	Key         [16]byte
}

// Encode serializes the record into its fixed binary layout.
func (r *ApplicationKeyRecord) Encode() []byte {
	buf := make([]byte, AppKeyRecordSize)
	binary.LittleEndian.PutUint16(buf[0:2], r.AppKeyIndex)
	binary.LittleEndian.PutUint16(buf[2:4], r.NetKeyIndex)
	binary.LittleEndian.PutUint16(buf[4:6], r.Slot)
	buf[6] = r.AID
	buf[7] = r.AKF
	buf[8] = r.Version
	copy(buf[9:25], r.Key[:])
	return buf
}

// DecodeAppKeyRecord parses a fixed-layout application key record.
// Returns ErrBadRecordSize unless data is exactly AppKeyRecordSize bytes.
func DecodeAppKeyRecord(data []byte) (*ApplicationKeyRecord, error) {
	if len(data) != AppKeyRecordSize {
		return nil, ErrBadRecordSize
	}

	r := &ApplicationKeyRecord{
		AppKeyIndex: binary.LittleEndian.Uint16(data[0:2]),
		NetKeyIndex: binary.LittleEndian.Uint16(data[2:4]),
		Slot:        binary.LittleEndian.Uint16(data[4:6]),
		AID:         data[6],
		AKF:         data[7],
		Version:     data[8],
	}
	copy(r.Key[:], data[9:25])
	return r, nil
}
