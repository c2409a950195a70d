// Package identity supplies the node's 16-byte device UUID.
//
// The UUID identifies an unprovisioned node in discovery advertisements.
// It is either supplied externally (for example from persisted
// provisioning data) or generated once per process lifetime from a secure
// random source. Generation is asynchronous; concurrent requests are
// coalesced onto a single outstanding generation so racing callers can
// never trigger duplicate generation.
package identity

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotSet is returned by Get when no identity is available yet.
var ErrNotSet = errors.New("device identity not set")

// UUID is the node's 16-byte device identifier.
type UUID [16]byte

// String renders the identifier in canonical UUID form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Parse parses a canonical UUID string into a device identifier.
func Parse(s string) (UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, err
	}
	return UUID(parsed), nil
}

// RandomSource produces 16 random bytes asynchronously, delivering the
// result through a single completion callback. At most one generation is
// requested at a time by this package.
type RandomSource interface {
	GenerateUUID(complete func(UUID, error))
}

// CryptoSource is a RandomSource over crypto/rand.
//
// If a dispatch function is provided, completions are delivered through
// it; a node controller passes its event-queue dispatch here so the
// completion runs on the controller's single handler goroutine. With a
// nil dispatch the completion runs on an internal goroutine.
type CryptoSource struct {
	dispatch func(func())
}

// NewCryptoSource creates a crypto/rand-backed source. dispatch may be
// nil.
func NewCryptoSource(dispatch func(func())) *CryptoSource {
	return &CryptoSource{dispatch: dispatch}
}

// GenerateUUID reads 16 random bytes and delivers them to complete.
func (s *CryptoSource) GenerateUUID(complete func(UUID, error)) {
	go func() {
		var u UUID
		_, err := rand.Read(u[:])

		deliver := func() { complete(u, err) }
		if s.dispatch != nil {
			s.dispatch(deliver)
		} else {
			deliver()
		}
	}()
}

// Provider caches the device UUID and coalesces generation requests.
//
// The cached value is stable until process restart. While a generation is
// outstanding, additional GetOrCreate callers are queued onto the same
// request; the source is never asked twice.
type Provider struct {
	mu      sync.Mutex
	source  RandomSource
	cached  *UUID
	waiters []func(UUID, error)
}

// NewProvider creates a provider over the given random source.
func NewProvider(source RandomSource) *Provider {
	return &Provider{source: source}
}

// Set installs an externally supplied identity, replacing any cached
// value. Safe to call before any GetOrCreate.
func (p *Provider) Set(u UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := u
	p.cached = &v
}

// Get returns the cached identity, or ErrNotSet if none exists yet.
// It never triggers generation.
func (p *Provider) Get() (UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return UUID{}, ErrNotSet
	}
	return *p.cached, nil
}

// GetOrCreate invokes complete with the device identity.
//
// If an identity is cached the completion fires synchronously before
// GetOrCreate returns. Otherwise the caller is queued and at most one
// generation request is issued to the random source; every queued caller
// receives the same value (or the same generation error) when it
// completes.
func (p *Provider) GetOrCreate(complete func(UUID, error)) {
	p.mu.Lock()
	if p.cached != nil {
		u := *p.cached
		p.mu.Unlock()
		complete(u, nil)
		return
	}

	p.waiters = append(p.waiters, complete)
	first := len(p.waiters) == 1
	p.mu.Unlock()

	if first {
		p.source.GenerateUUID(p.finishGenerate)
	}
}

// finishGenerate caches the generated value and drains the waiter queue.
// On error nothing is cached; a later GetOrCreate starts a fresh request.
// If a Set landed while the generation was outstanding, the supplied
// identity stays cached and the waiters receive it instead of the
// generated value.
func (p *Provider) finishGenerate(u UUID, err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	if p.cached != nil {
		u, err = *p.cached, nil
	} else if err == nil {
		v := u
		p.cached = &v
	}
	p.mu.Unlock()

	for _, complete := range waiters {
		complete(u, err)
	}
}
