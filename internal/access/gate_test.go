package access

import (
	"path/filepath"
	"testing"
	"time"

	"browsernerd/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// synchronous dispatch: gate tests drive everything from one goroutine.
func syncDispatch(job func()) { job() }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidate_TrimsWhitespace(t *testing.T) {
	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     openTestStore(t),
	})

	require.True(t, g.Validate("  CORRECT  "))
	require.True(t, g.IsActivated())
}

func TestValidate_MismatchChangesNothing(t *testing.T) {
	s := openTestStore(t)
	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     s,
	})

	require.False(t, g.Validate("WRONG"))
	require.False(t, g.IsActivated())
	require.Zero(t, g.TimeRemaining())
	require.True(t, s.LoadAccessGrant().Expiry.IsZero(), "mismatch must not persist a grant")
}

func TestValidate_GrantIs48Hours(t *testing.T) {
	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     openTestStore(t),
	})

	require.True(t, g.Validate("CORRECT"))
	require.InDelta(t, (48 * time.Hour).Seconds(), g.TimeRemaining().Seconds(), 2.0)
}

func TestExpiryFlipsActivatedOff(t *testing.T) {
	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     openTestStore(t),
	})
	require.True(t, g.Validate("CORRECT"))
	require.True(t, g.IsActivated())

	// Move the clock past the persisted expiry; the next recomputation
	// must flip activation off.
	g.now = func() time.Time { return time.Now().Add(49 * time.Hour) }
	g.Tick()

	require.False(t, g.IsActivated())
	require.Zero(t, g.TimeRemaining())
}

func TestNewGate_RestoresPersistedGrant(t *testing.T) {
	s := openTestStore(t)
	expiry := time.Now().Add(10 * time.Hour)
	s.SaveAccessGrant(store.AccessGrant{Expiry: expiry})

	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     s,
	})

	require.True(t, g.IsActivated())
	require.InDelta(t, (10 * time.Hour).Seconds(), g.TimeRemaining().Seconds(), 2.0)
}

func TestNewGate_StaleGrantStartsDeactivated(t *testing.T) {
	s := openTestStore(t)
	s.SaveAccessGrant(store.AccessGrant{Expiry: time.Now().Add(-time.Minute)})

	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     s,
	})

	require.False(t, g.IsActivated())
}

func TestTickerTeardown(t *testing.T) {
	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     openTestStore(t),
		Interval:  5 * time.Millisecond,
	})
	g.Start()
	time.Sleep(20 * time.Millisecond)
	g.Close() // synchronous; goleak verifies the ticker goroutine is gone
	g.Close() // idempotent
}

func TestCountdownTicks(t *testing.T) {
	changes := 0
	g := NewGate(Options{
		Dispatch:  syncDispatch,
		Validator: PlaintextValidator{Credential: "CORRECT"},
		Store:     openTestStore(t),
		OnChange:  func() { changes++ },
	})
	require.True(t, g.Validate("CORRECT"))

	before := g.TimeRemaining()
	g.now = func() time.Time { return time.Now().Add(time.Minute) }
	g.Tick()

	require.Less(t, g.TimeRemaining(), before)
	require.GreaterOrEqual(t, changes, 2)
}
