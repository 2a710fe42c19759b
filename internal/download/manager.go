package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"browsernerd/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Item tracks one transfer. Progress is monotonically non-decreasing and
// reaches exactly 1.0 exactly once, only on confirmed completion; failed
// transfers are removed entirely.
type Item struct {
	ID          string  `json:"id"`
	URL         string  `json:"url"`
	Filename    string  `json:"filename"`
	Progress    float64 `json:"progress"`
	Downloading bool    `json:"downloading"`
	Completed   bool    `json:"completed"`
}

// estimateCap is the ceiling for synthetic progress. The terminal jump to
// 1.0 happens only on confirmed completion, so observers never see "100%"
// for a transfer that is still in flight.
const estimateCap = 0.9

// estimateStep is the synthetic progress increment per tick.
const estimateStep = 0.1

// Fetcher performs the real transfer of url into the file at dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// Manager owns the download collection. All collection mutations happen on
// the serialized control context supplied via dispatch; only the workers
// themselves run concurrently.
type Manager struct {
	dispatch func(func())
	fetcher  Fetcher
	dir      string
	tick     time.Duration
	activity *logging.ActivityLog

	// Mutated on the control context only.
	items []*Item

	onChange func()
	onError  func(filename string, err error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures a Manager.
type Options struct {
	Dispatch func(func()) // required: marshals onto the control context
	Fetcher  Fetcher      // required
	Dir      string       // destination directory for completed transfers
	Tick     time.Duration
	Activity *logging.ActivityLog
	OnChange func()
	OnError  func(filename string, err error)
}

// NewManager creates a download manager.
func NewManager(opts Options) *Manager {
	if opts.Tick <= 0 {
		opts.Tick = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dispatch: opts.Dispatch,
		fetcher:  opts.Fetcher,
		dir:      opts.Dir,
		tick:     opts.Tick,
		activity: opts.Activity,
		onChange: opts.OnChange,
		onError:  opts.OnError,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Items returns a snapshot copy. Control context only.
func (m *Manager) Items() []Item {
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = *it
	}
	return out
}

// Start creates the DownloadItem and launches the transfer worker plus the
// progress-estimation sequence. Control context only.
func (m *Manager) Start(rawURL string) Item {
	item := &Item{
		ID:          uuid.NewString(),
		URL:         rawURL,
		Filename:    Filename(rawURL),
		Progress:    0,
		Downloading: true,
	}
	m.items = append(m.items, item)
	logging.Download("transfer started: %s", item.Filename)
	if m.activity != nil {
		m.activity.Event("Download started", item.Filename)
	}
	m.changed()

	m.wg.Add(1)
	go m.run(item.ID, rawURL, item.Filename)
	return *item
}

// Clear drops finished and failed leftovers from the collection. In-flight
// items are removed as well; their late callbacks no-op via id lookup.
// Control context only.
func (m *Manager) Clear() {
	m.items = nil
	m.changed()
}

// Shutdown cancels workers and waits for them to drain.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

// run executes the real transfer and the synthetic estimator concurrently.
func (m *Manager) run(id, rawURL, filename string) {
	defer m.wg.Done()

	tmp, err := os.CreateTemp("", "bnerd-dl-*")
	if err != nil {
		m.fail(id, filename, fmt.Errorf("create temp file: %w", err))
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()

	transferCtx, stopEstimator := context.WithCancel(m.ctx)
	defer stopEstimator()

	g, gctx := errgroup.WithContext(transferCtx)

	// Synthetic progress: ticks independently of the real transfer, since
	// true completion is only known when the transfer finishes.
	g.Go(func() error {
		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				m.dispatch(func() { m.bump(id) })
			}
		}
	})

	var fetchErr error
	g.Go(func() error {
		fetchErr = m.fetcher.Fetch(gctx, rawURL, tmpPath)
		stopEstimator()
		return nil
	})
	_ = g.Wait()

	if m.ctx.Err() != nil {
		os.Remove(tmpPath)
		return
	}
	if fetchErr != nil {
		os.Remove(tmpPath)
		m.fail(id, filename, fetchErr)
		return
	}

	dest := filepath.Join(m.dir, filename)
	if err := os.MkdirAll(m.dir, 0755); err == nil {
		err = os.Rename(tmpPath, dest)
		if err != nil {
			// Cross-device rename falls back to copy-by-read.
			if data, rerr := os.ReadFile(tmpPath); rerr == nil {
				err = os.WriteFile(dest, data, 0644)
			}
		}
		if err != nil {
			os.Remove(tmpPath)
			m.fail(id, filename, fmt.Errorf("store payload: %w", err))
			return
		}
		os.Remove(tmpPath)
	} else {
		os.Remove(tmpPath)
		m.fail(id, filename, fmt.Errorf("create download dir: %w", err))
		return
	}

	m.dispatch(func() { m.complete(id) })
}

// bump advances the synthetic estimate. Control context only.
func (m *Manager) bump(id string) {
	it := m.find(id)
	if it == nil || it.Completed {
		return
	}
	next := it.Progress + estimateStep
	if next > estimateCap {
		next = estimateCap
	}
	if next > it.Progress {
		it.Progress = next
		m.changed()
	}
}

// complete applies the terminal jump exactly once. Control context only.
func (m *Manager) complete(id string) {
	it := m.find(id)
	if it == nil || it.Completed {
		return
	}
	it.Progress = 1.0
	it.Downloading = false
	it.Completed = true
	logging.Download("transfer complete: %s", it.Filename)
	if m.activity != nil {
		m.activity.Event("Download finished", it.Filename)
	}
	m.changed()
}

// fail removes the item entirely; no partial item is left behind.
func (m *Manager) fail(id, filename string, err error) {
	logging.DownloadError("transfer failed: %s: %v", filename, err)
	m.dispatch(func() {
		for i, it := range m.items {
			if it.ID == id {
				m.items = append(m.items[:i], m.items[i+1:]...)
				break
			}
		}
		if m.activity != nil {
			m.activity.Event("Download failed", filename, err.Error())
		}
		if m.onError != nil {
			m.onError(filename, err)
		}
		m.changed()
	})
}

func (m *Manager) find(id string) *Item {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
