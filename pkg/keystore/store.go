package keystore

import (
	"fmt"
	"log/slog"

	"github.com/meshnode-protocol/meshnode-go/pkg/tagstore"
)

// Tag layout: 'M' | kind | 16-bit slot. The kind byte separates the two
// record namespaces; the slot occupies the low-order bits.
const (
	tagPrefix      = 'M'
	kindNetworkKey = 'N'
	kindAppKey     = 'A'
)

// NetworkKeyTag returns the durable-store tag for a network key slot.
func NetworkKeyTag(slot uint16) uint32 {
	return uint32(tagPrefix)<<24 | uint32(kindNetworkKey)<<16 | uint32(slot)
}

// AppKeyTag returns the durable-store tag for an application key slot.
func AppKeyTag(slot uint16) uint32 {
	return uint32(tagPrefix)<<24 | uint32(kindAppKey)<<16 | uint32(slot)
}

// KeyTable is the live key table the store registers records into when
// loading. It is owned by the mesh network layer, not by this package.
//
// AddNetworkKey and AddAppKey may fail when the table's fixed capacity is
// exhausted; the load pass reports that and stops. SetupSubnet creates
// the runtime subnet context for a network key's protocol-visible index
// and is called after the key has been added.
type KeyTable interface {
	AddNetworkKey(record *NetworkKeyRecord) error
	AddAppKey(record *ApplicationKeyRecord) error
	SetupSubnet(netKeyIndex uint16)
}

// Store maps key records to and from a tag-addressed durable backend.
//
// Store and delete failures from the backend are returned to the caller
// and never retried: a failed write means the key exists only in volatile
// memory, and whoever triggered the operation has to know.
type Store struct {
	backend tagstore.Store
	logger  *slog.Logger
}

// NewStore creates a key store over the given durable backend.
// logger may be nil to disable logging.
func NewStore(backend tagstore.Store, logger *slog.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// StoreNetworkKey persists a network key record under its slot tag,
// overwriting any prior record in that slot.
func (s *Store) StoreNetworkKey(record *NetworkKeyRecord) error {
	if record.Slot >= MaxNetworkKeys {
		return ErrSlotRange
	}

	s.debugLog("store network key",
		"slot", record.Slot,
		"netKeyIndex", record.NetKeyIndex,
		"nid", record.NID)

	if err := s.backend.StoreTag(NetworkKeyTag(record.Slot), record.Encode()); err != nil {
		return fmt.Errorf("failed to store network key slot %d: %w", record.Slot, err)
	}
	return nil
}

// DeleteNetworkKey removes the record in the given slot. Deleting an
// empty slot is a no-op.
func (s *Store) DeleteNetworkKey(slot uint16) error {
	if slot >= MaxNetworkKeys {
		return ErrSlotRange
	}
	if err := s.backend.DeleteTag(NetworkKeyTag(slot)); err != nil {
		return fmt.Errorf("failed to delete network key slot %d: %w", slot, err)
	}
	return nil
}

// LoadNetworkKeys scans every network key slot, decodes each persisted
// record and registers it with the live key table, then initializes the
// subnet context for its index. Slots that are empty or hold a record of
// the wrong size are skipped. A key-table registration failure aborts the
// remainder of the pass; the records restored so far stay registered.
//
// Returns the number of records registered.
func (s *Store) LoadNetworkKeys(table KeyTable) (int, error) {
	loaded := 0
	for slot := uint16(0); slot < MaxNetworkKeys; slot++ {
		data, ok := s.backend.GetTag(NetworkKeyTag(slot))
		if !ok {
			continue
		}

		record, err := DecodeNetworkKeyRecord(data)
		if err != nil {
			s.debugLog("skipping network key slot with unexpected size",
				"slot", slot, "size", len(data))
			continue
		}

		// Rebuild the cached advertising payload; it is derived from
		// the network ID and intentionally not persisted.
		record.EnsureAdvertisement()

		if err := table.AddNetworkKey(record); err != nil {
			return loaded, fmt.Errorf("failed to register network key slot %d: %w", slot, err)
		}
		table.SetupSubnet(record.NetKeyIndex)
		loaded++

		s.debugLog("loaded network key",
			"slot", record.Slot,
			"netKeyIndex", record.NetKeyIndex,
			"nid", record.NID)
	}
	return loaded, nil
}

// DeleteNetworkKeys attempts to delete every network key slot, occupied
// or not. All slots are attempted; the first backend error is returned.
func (s *Store) DeleteNetworkKeys() error {
	var firstErr error
	for slot := uint16(0); slot < MaxNetworkKeys; slot++ {
		if err := s.DeleteNetworkKey(slot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StoreAppKey persists an application key record under its slot tag,
// overwriting any prior record in that slot.
func (s *Store) StoreAppKey(record *ApplicationKeyRecord) error {
	if record.Slot >= MaxAppKeys {
		return ErrSlotRange
	}

	s.debugLog("store app key",
		"slot", record.Slot,
		"appKeyIndex", record.AppKeyIndex,
		"netKeyIndex", record.NetKeyIndex,
		"aid", record.AID)

	if err := s.backend.StoreTag(AppKeyTag(record.Slot), record.Encode()); err != nil {
		return fmt.Errorf("failed to store app key slot %d: %w", record.Slot, err)
	}
	return nil
}

// DeleteAppKey removes the record in the given slot. Deleting an empty
// slot is a no-op.
func (s *Store) DeleteAppKey(slot uint16) error {
	if slot >= MaxAppKeys {
		return ErrSlotRange
	}
	if err := s.backend.DeleteTag(AppKeyTag(slot)); err != nil {
		return fmt.Errorf("failed to delete app key slot %d: %w", slot, err)
	}
	return nil
}

// LoadAppKeys scans every application key slot and registers each
// persisted record with the live key table. Skip and abort semantics
// match LoadNetworkKeys.
//
// Returns the number of records registered.
func (s *Store) LoadAppKeys(table KeyTable) (int, error) {
	loaded := 0
	for slot := uint16(0); slot < MaxAppKeys; slot++ {
		data, ok := s.backend.GetTag(AppKeyTag(slot))
		if !ok {
			continue
		}

		record, err := DecodeAppKeyRecord(data)
		if err != nil {
			s.debugLog("skipping app key slot with unexpected size",
				"slot", slot, "size", len(data))
			continue
		}

		if err := table.AddAppKey(record); err != nil {
			return loaded, fmt.Errorf("failed to register app key slot %d: %w", slot, err)
		}
		loaded++

		s.debugLog("loaded app key",
			"slot", record.Slot,
			"appKeyIndex", record.AppKeyIndex,
			"aid", record.AID)
	}
	return loaded, nil
}

// DeleteAppKeys attempts to delete every application key slot, occupied
// or not. All slots are attempted; the first backend error is returned.
func (s *Store) DeleteAppKeys() error {
	var firstErr error
	for slot := uint16(0); slot < MaxAppKeys; slot++ {
		if err := s.DeleteAppKey(slot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// debugLog logs a debug message if logging is enabled. Key bytes are
// never logged, only indices and identifiers.
func (s *Store) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
