package model

import (
	"errors"
	"sync"

	"github.com/meshnode-protocol/meshnode-go/pkg/identity"
)

// Node errors.
var (
	ErrDuplicateElement = errors.New("duplicate element index")
	ErrElementNotFound  = errors.New("element not found")
)

// UnassignedAddress is the unicast address of an unprovisioned node.
const UnassignedAddress uint16 = 0x0000

// Node is the top-level container in the Node > Element > Model
// hierarchy. It owns the identity state written by provisioning: device
// UUID, primary unicast address, device key.
type Node struct {
	mu sync.RWMutex

	// Device UUID advertised while unprovisioned.
	deviceUUID    identity.UUID
	hasDeviceUUID bool

	// Primary element unicast address, assigned by provisioning.
	primaryAddress uint16

	// Device key for device-specific security operations.
	deviceKey    [16]byte
	hasDeviceKey bool

	// Elements indexed by address offset. Index 0 always exists.
	elements map[uint16]*Element
}

// NewNode creates a node with its primary element.
func NewNode() *Node {
	n := &Node{
		elements: make(map[uint16]*Element),
	}
	n.elements[0] = NewElement(0, "primary")
	return n
}

// PrimaryElement returns element 0.
func (n *Node) PrimaryElement() *Element {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.elements[0]
}

// AddElement adds a secondary element to the node.
func (n *Node) AddElement(element *Element) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.elements[element.Index()]; exists {
		return ErrDuplicateElement
	}
	n.elements[element.Index()] = element
	return nil
}

// GetElement returns an element by address offset.
func (n *Node) GetElement(index uint16) (*Element, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	element, exists := n.elements[index]
	if !exists {
		return nil, ErrElementNotFound
	}
	return element, nil
}

// ElementCount returns the number of elements.
func (n *Node) ElementCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.elements)
}

// SetDeviceUUID installs the device UUID.
func (n *Node) SetDeviceUUID(u identity.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deviceUUID = u
	n.hasDeviceUUID = true
}

// DeviceUUID returns the device UUID; the second return is false if none
// has been set.
func (n *Node) DeviceUUID() (identity.UUID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deviceUUID, n.hasDeviceUUID
}

// SetPrimaryAddress assigns the primary element's unicast address.
func (n *Node) SetPrimaryAddress(address uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.primaryAddress = address
}

// PrimaryAddress returns the primary element's unicast address.
// UnassignedAddress means the node is unprovisioned.
func (n *Node) PrimaryAddress() uint16 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.primaryAddress
}

// SetDeviceKey installs the device key.
func (n *Node) SetDeviceKey(key [16]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deviceKey = key
	n.hasDeviceKey = true
}

// DeviceKey returns the device key; the second return is false if none
// has been set.
func (n *Node) DeviceKey() ([16]byte, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deviceKey, n.hasDeviceKey
}
