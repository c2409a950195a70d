package model

import (
	"errors"
	"sync"
)

// Element errors.
var (
	ErrModelNotFound  = errors.New("model not found")
	ErrDuplicateModel = errors.New("duplicate model ID")
)

// Element represents one addressable unit within a node. Element 0 is
// the primary element; further elements occupy consecutive unicast
// addresses after the primary address.
type Element struct {
	mu sync.RWMutex

	// index is the element's position; the element's unicast address is
	// the node's primary address plus this offset.
	index uint16

	// label is an optional human-readable label.
	label string

	// Models indexed by full model ID.
	models map[ModelID]*Model
}

// NewElement creates a new element.
func NewElement(index uint16, label string) *Element {
	return &Element{
		index:  index,
		label:  label,
		models: make(map[ModelID]*Model),
	}
}

// Index returns the element's address offset.
func (e *Element) Index() uint16 {
	return e.index
}

// Label returns the element label.
func (e *Element) Label() string {
	return e.label
}

// AddModel registers a model on the element.
// Returns ErrDuplicateModel if a model with the same ID is already
// registered; registering a model twice is always a caller bug.
func (e *Element) AddModel(model *Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.models[model.ID()]; exists {
		return ErrDuplicateModel
	}
	e.models[model.ID()] = model
	return nil
}

// GetModel returns a model by ID.
func (e *Element) GetModel(id ModelID) (*Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	model, exists := e.models[id]
	if !exists {
		return nil, ErrModelNotFound
	}
	return model, nil
}

// HasModel returns true if the element hosts the given model.
func (e *Element) HasModel(id ModelID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, exists := e.models[id]
	return exists
}

// Models returns all models on this element.
func (e *Element) Models() []*Model {
	e.mu.RLock()
	defer e.mu.RUnlock()

	models := make([]*Model, 0, len(e.models))
	for _, model := range e.models {
		models = append(models, model)
	}
	return models
}

// ModelCount returns the number of models on this element.
func (e *Element) ModelCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.models)
}
