package provisioning

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meshnode-protocol/meshnode-go/pkg/tagstore"
)

// RecordVersion is the current node record layout version.
const RecordVersion = 1

// RecordSize is the serialized node record size. Loads accept exactly
// this size and nothing else.
const RecordSize = 24

// nodeRecordTag addresses the single provisioning record. 'P' keeps it
// out of the key-record namespaces ('N', 'A').
const nodeRecordTag = uint32('M')<<24 | uint32('P')<<16

// ErrBadRecordSize is returned when a persisted node record has an
// unexpected size.
var ErrBadRecordSize = errors.New("unexpected node record size")

// RecordStore persists the identity half of a provisioning outcome: the
// unicast address, device key, IV index and flags. The first network key
// is persisted separately through the key store.
type RecordStore struct {
	backend tagstore.Store
	logger  *slog.Logger
}

// NewRecordStore creates a record store over the durable backend.
// logger may be nil to disable logging.
func NewRecordStore(backend tagstore.Store, logger *slog.Logger) *RecordStore {
	return &RecordStore{backend: backend, logger: logger}
}

// Store persists the outcome's identity fields.
func (s *RecordStore) Store(outcome *Outcome) error {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint16(buf[0:2], outcome.UnicastAddress)
	buf[2] = outcome.Flags
	buf[3] = RecordVersion
	binary.LittleEndian.PutUint32(buf[4:8], outcome.IVIndex)
	copy(buf[8:24], outcome.DeviceKey[:])

	if s.logger != nil {
		s.logger.Debug("store provisioning record",
			"unicastAddress", fmt.Sprintf("%#04x", outcome.UnicastAddress),
			"ivIndex", outcome.IVIndex,
			"ivUpdateActive", outcome.IVUpdateActive())
	}

	if err := s.backend.StoreTag(nodeRecordTag, buf); err != nil {
		return fmt.Errorf("failed to store provisioning record: %w", err)
	}
	return nil
}

// Load recovers a previously persisted outcome. The second return is
// false when no record exists or the persisted record has the wrong
// size; a wrong-size record is treated like an absent one so an
// incompatible image cannot wedge startup.
func (s *RecordStore) Load() (*Outcome, bool) {
	data, ok := s.backend.GetTag(nodeRecordTag)
	if !ok {
		return nil, false
	}
	if len(data) != RecordSize {
		if s.logger != nil {
			s.logger.Warn("skipping provisioning record with unexpected size",
				"size", len(data))
		}
		return nil, false
	}

	outcome := &Outcome{
		UnicastAddress: binary.LittleEndian.Uint16(data[0:2]),
		Flags:          data[2],
		IVIndex:        binary.LittleEndian.Uint32(data[4:8]),
	}
	copy(outcome.DeviceKey[:], data[8:24])
	return outcome, true
}

// Delete removes the persisted record. A no-op when none exists.
func (s *RecordStore) Delete() error {
	if err := s.backend.DeleteTag(nodeRecordTag); err != nil {
		return fmt.Errorf("failed to delete provisioning record: %w", err)
	}
	return nil
}
