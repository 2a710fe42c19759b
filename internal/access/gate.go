// Package access gates the browsing shell behind a time-limited activation
// code. A persisted expiry timestamp survives restarts; a one-second tick
// recomputes the live countdown.
package access

import (
	"errors"
	"strings"
	"sync"
	"time"

	"browsernerd/internal/logging"
	"browsernerd/internal/store"
)

// ErrActivationRejected reports a credential mismatch. Surfaced to the user;
// deliberately not logged as a security event.
var ErrActivationRejected = errors.New("activation code rejected")

// CredentialValidator decides whether an activation code is acceptable.
// The default is a fixed plaintext comparison - a weakness inherited from
// the source design, isolated here rather than silently hardened.
type CredentialValidator interface {
	Valid(code string) bool
}

// PlaintextValidator compares against a configured plaintext credential.
type PlaintextValidator struct {
	Credential string
}

// Valid reports whether code matches the configured credential.
func (v PlaintextValidator) Valid(code string) bool {
	return code == v.Credential
}

// Gate tracks the activation state. All state mutations happen on the
// serialized control context via dispatch; the ticker only ever dispatches.
type Gate struct {
	dispatch  func(func())
	validator CredentialValidator
	store     *store.Store
	duration  time.Duration
	onChange  func()
	interval  time.Duration
	now       func() time.Time

	// Mutated on the control context only.
	expiry    time.Time
	remaining time.Duration
	activated bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Options configures a Gate.
type Options struct {
	Dispatch  func(func()) // required
	Validator CredentialValidator
	Store     *store.Store
	Duration  time.Duration // grant length on successful validation
	OnChange  func()
	Interval  time.Duration // tick interval; defaults to 1s
}

// NewGate creates a gate, loading any previously persisted expiry. A still-
// future expiry pre-activates the gate with the corresponding remaining time.
func NewGate(opts Options) *Gate {
	if opts.Duration <= 0 {
		opts.Duration = 48 * time.Hour
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	g := &Gate{
		dispatch:  opts.Dispatch,
		validator: opts.Validator,
		store:     opts.Store,
		duration:  opts.Duration,
		onChange:  opts.OnChange,
		interval:  opts.Interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if g.store != nil {
		grant := g.store.LoadAccessGrant()
		if !grant.Expiry.IsZero() {
			g.expiry = grant.Expiry
			g.recompute()
			if g.activated {
				logging.Access("restored grant, %s remaining", g.remaining)
			}
		}
	}
	return g
}

// Start launches the countdown ticker. Non-blocking.
func (g *Gate) Start() {
	go func() {
		defer close(g.doneCh)
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-g.stopCh:
				return
			case <-ticker.C:
				g.dispatch(func() { g.Tick() })
			}
		}
	}()
}

// Close tears the ticker down synchronously.
func (g *Gate) Close() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
		<-g.doneCh
	})
}

// Validate checks an activation code. Surrounding whitespace is trimmed
// before comparison. On match the grant is persisted and the gate activates;
// on mismatch nothing changes. Control context only.
func (g *Gate) Validate(code string) bool {
	code = strings.TrimSpace(code)
	if g.validator == nil || !g.validator.Valid(code) {
		return false
	}

	g.expiry = g.now().Add(g.duration)
	if g.store != nil {
		g.store.SaveAccessGrant(store.AccessGrant{Expiry: g.expiry})
	}
	g.recompute()
	logging.Access("activated until %s", g.expiry.Format(time.RFC3339))
	g.changed()
	return true
}

// Tick recomputes the countdown from the persisted expiry. Control context
// only; exposed so tests can drive the clock without the ticker.
func (g *Gate) Tick() {
	wasActivated := g.activated
	g.recompute()
	if g.activated != wasActivated || g.activated {
		g.changed()
	}
}

// IsActivated reports whether the grant is currently valid. Control context
// only.
func (g *Gate) IsActivated() bool { return g.activated }

// TimeRemaining reports the live countdown, never negative. Control context
// only.
func (g *Gate) TimeRemaining() time.Duration { return g.remaining }

func (g *Gate) recompute() {
	now := g.now()
	if g.expiry.After(now) {
		g.remaining = g.expiry.Sub(now)
		g.activated = true
		return
	}
	g.remaining = 0
	g.activated = false
}

func (g *Gate) changed() {
	if g.onChange != nil {
		g.onChange()
	}
}
