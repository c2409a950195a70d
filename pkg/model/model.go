package model

import "fmt"

// sigCompanyID is the Bluetooth SIG company identifier used in SIG model
// IDs.
const sigCompanyID = 0xFFFF

// SIG model identifiers for the mandatory foundation models.
const (
	ConfigurationServerModelID uint16 = 0x0000
	HealthServerModelID        uint16 = 0x0002
)

// ModelID is a 32-bit model identifier: company ID in the upper 16 bits,
// model ID in the lower 16 bits.
type ModelID uint32

// SIGModelID builds the full model identifier for a Bluetooth SIG defined
// model.
func SIGModelID(modelID uint16) ModelID {
	return ModelID(uint32(sigCompanyID)<<16 | uint32(modelID))
}

// VendorModelID builds the full model identifier for a vendor model.
func VendorModelID(companyID, modelID uint16) ModelID {
	return ModelID(uint32(companyID)<<16 | uint32(modelID))
}

// CompanyID returns the company ID half of the identifier.
func (id ModelID) CompanyID() uint16 {
	return uint16(id >> 16)
}

// IsSIG reports whether the identifier names a Bluetooth SIG model.
func (id ModelID) IsSIG() bool {
	return id.CompanyID() == sigCompanyID
}

// String renders the identifier as company:model.
func (id ModelID) String() string {
	return fmt.Sprintf("%04x:%04x", id.CompanyID(), uint16(id))
}

// Model is one model instance hosted on an element.
type Model struct {
	id ModelID

	// context is the model's per-instance state block, owned by the
	// model's implementation.
	context any
}

// NewModel creates a model with its per-instance state.
func NewModel(id ModelID, context any) *Model {
	return &Model{id: id, context: context}
}

// ID returns the model identifier.
func (m *Model) ID() ModelID {
	return m.id
}

// Context returns the model's per-instance state block.
func (m *Model) Context() any {
	return m.context
}
