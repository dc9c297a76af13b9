// Package monitor drives periodic discovery cycles and owns the registry.
//
// Concurrency model: Run executes a single event loop that is the only writer
// of the registry. Scans and title probes run on their own goroutines and hand
// results back over channels; Kill and Refresh are requests to the loop.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/portlight/internal/apperr"
	"github.com/starford/portlight/internal/discovery"
	"github.com/starford/portlight/internal/models"
	"github.com/starford/portlight/internal/registry"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultInterval    = 3 * time.Second
	DefaultKillRecheck = 500 * time.Millisecond
	DefaultProbeHost   = "localhost"
)

// Prober fetches a page title. Implementations bound their own runtime.
type Prober interface {
	Probe(ctx context.Context, url string) models.ProbeOutcome
}

// Deps are the collaborators a Monitor needs.
type Deps struct {
	System   discovery.System
	Prober   Prober
	Browsers []string
	Logger   *slog.Logger
}

// Options tune the refresh loop.
type Options struct {
	Interval    time.Duration
	KillRecheck time.Duration
	ProbeHost   string
}

type scanResult struct {
	listeners []models.Listener
	projects  map[int32]string
	browser   map[int]struct{}
	epoch     uint64
	took      time.Duration
}

type probeResult struct {
	id      models.Identity
	outcome models.ProbeOutcome
}

// Monitor maintains the published list of active local services.
type Monitor struct {
	sys        discovery.System
	prober     Prober
	listeners  *discovery.ListenerScanner
	conns      *discovery.ConnectionScanner
	attributor *discovery.ProcessAttributor
	logger     *slog.Logger

	interval    time.Duration
	killRecheck time.Duration
	probeHost   string

	// Owned by the loop goroutine.
	reg       *registry.Registry
	killEpoch uint64
	kills     map[int32]uint64

	refreshCh chan struct{}
	scanCh    chan scanResult
	probeCh   chan probeResult
	killCh    chan int32

	busy    atomic.Bool
	started atomic.Bool
	cycles  atomic.Uint64
	view    atomic.Pointer[models.View]
	done    chan struct{}

	subMu sync.Mutex
	subs  []func(models.View)
}

// New creates a Monitor. Call Run to start it.
func New(deps Deps, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.KillRecheck <= 0 {
		opts.KillRecheck = DefaultKillRecheck
	}
	if opts.ProbeHost == "" {
		opts.ProbeHost = DefaultProbeHost
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		sys:         deps.System,
		prober:      deps.Prober,
		listeners:   discovery.NewListenerScanner(deps.System, logger),
		conns:       discovery.NewConnectionScanner(deps.System, deps.Browsers, logger),
		attributor:  discovery.NewProcessAttributor(deps.System, logger),
		logger:      logger,
		interval:    opts.Interval,
		killRecheck: opts.KillRecheck,
		probeHost:   opts.ProbeHost,
		reg:         registry.New(),
		kills:       make(map[int32]uint64),
		refreshCh:   make(chan struct{}, 1),
		scanCh:      make(chan scanResult),
		probeCh:     make(chan probeResult, 64),
		killCh:      make(chan int32, 16),
		done:        make(chan struct{}),
	}
}

// Subscribe registers fn to be called with every new view. fn runs on the
// monitor loop and must not block.
func (m *Monitor) Subscribe(fn func(models.View)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetBrowsers replaces the browser allow-list used by the connection scan.
func (m *Monitor) SetBrowsers(browsers []string) {
	m.conns.SetBrowsers(browsers)
}

// View returns the latest published view. Safe from any goroutine.
func (m *Monitor) View() models.View {
	if v := m.view.Load(); v != nil {
		return *v
	}
	return models.View{Services: []models.Service{}}
}

// Cycles returns the number of scan cycles merged so far.
func (m *Monitor) Cycles() uint64 {
	return m.cycles.Load()
}

// Refresh requests an out-of-band cycle. Requests made while one is pending
// are coalesced.
func (m *Monitor) Refresh() {
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Kill sends a termination request to pid, removes its records from the view
// right away and schedules a confirmatory rescan. Signal delivery failures
// are logged only; the rescan restores whatever is still listening.
func (m *Monitor) Kill(ctx context.Context, pid int32) error {
	if pid <= 1 || int(pid) == os.Getpid() {
		return fmt.Errorf("monitor: kill %d: %w", pid, apperr.ErrInvalidPID)
	}
	select {
	case <-m.done:
		return apperr.ErrClosed
	default:
	}
	if err := m.sys.Terminate(ctx, pid); err != nil {
		m.logger.Warn("monitor: terminate failed", slog.Int("pid", int(pid)), slog.String("error", err.Error()))
	}

	select {
	case m.killCh <- pid:
		return nil
	case <-m.done:
		return apperr.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the refresh loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("monitor: already running")
	}
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var recheckTimer *time.Timer
	var recheckCh <-chan time.Time
	recheckPending := false

	scheduleRecheck := func() {
		if recheckTimer == nil {
			recheckTimer = time.NewTimer(m.killRecheck)
			recheckCh = recheckTimer.C
		} else {
			recheckTimer.Reset(m.killRecheck)
		}
	}

	m.logger.Info("monitor: started",
		slog.Duration("interval", m.interval),
		slog.Duration("kill_recheck", m.killRecheck))

	m.publish()
	m.startScan(ctx)

	for {
		select {
		case <-ctx.Done():
			if recheckTimer != nil {
				recheckTimer.Stop()
			}
			m.logger.Info("monitor: stopped")
			return nil

		case <-ticker.C:
			m.startScan(ctx)

		case <-m.refreshCh:
			m.startScan(ctx)

		case <-recheckCh:
			if !m.startScan(ctx) {
				recheckPending = true
			}

		case res := <-m.scanCh:
			m.applyScan(ctx, res)
			if recheckPending {
				recheckPending = false
				m.startScan(ctx)
			}

		case res := <-m.probeCh:
			if m.reg.RecordProbe(res.id, res.outcome) {
				m.publish()
			}

		case pid := <-m.killCh:
			m.killEpoch++
			m.kills[pid] = m.killEpoch
			if m.reg.RemovePID(pid) {
				m.publish()
			}
			m.logger.Info("monitor: process killed", slog.Int("pid", int(pid)))
			scheduleRecheck()
		}
	}
}

// startScan launches a scan unless one is already running. It reports
// whether a scan was started.
func (m *Monitor) startScan(ctx context.Context) bool {
	if !m.busy.CompareAndSwap(false, true) {
		m.logger.Debug("monitor: cycle skipped, previous scan still running")
		return false
	}
	epoch := m.killEpoch
	go func() {
		res := m.scan(ctx)
		res.epoch = epoch
		select {
		case m.scanCh <- res:
		case <-ctx.Done():
		}
	}()
	return true
}

func (m *Monitor) scan(ctx context.Context) scanResult {
	start := time.Now()
	var res scanResult

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.listeners = m.listeners.Scan(gCtx)
		return nil
	})
	g.Go(func() error {
		res.browser = m.conns.Scan(gCtx)
		return nil
	})
	_ = g.Wait()

	res.projects = m.attributor.Attribute(ctx, res.listeners)
	res.took = time.Since(start)
	return res
}

func (m *Monitor) applyScan(ctx context.Context, res scanResult) {
	defer m.busy.Store(false)

	listeners := res.listeners
	if len(m.kills) > 0 {
		// A scan that started before a kill must not resurrect the pid.
		listeners = slices.DeleteFunc(slices.Clone(listeners), func(l models.Listener) bool {
			return m.kills[l.PID] > res.epoch
		})
		for pid, e := range m.kills {
			if e <= res.epoch {
				delete(m.kills, pid)
			}
		}
	}

	changed, targets := m.reg.Merge(listeners, res.projects, res.browser)
	m.cycles.Add(1)
	m.logger.Debug("monitor: cycle merged",
		slog.Int("listeners", len(listeners)),
		slog.Int("browser_ports", len(res.browser)),
		slog.Int("records", m.reg.Len()),
		slog.Int("probes", len(targets)),
		slog.Duration("took", res.took))

	if changed {
		m.publish()
	}
	for _, rec := range targets {
		m.launchProbe(ctx, rec)
	}
}

func (m *Monitor) launchProbe(ctx context.Context, rec models.PortRecord) {
	url := "http://" + net.JoinHostPort(m.probeHost, strconv.Itoa(rec.Port))
	id := rec.ID
	go func() {
		o := m.prober.Probe(ctx, url)
		attrs := []any{slog.String("id", id.String()), slog.String("state", o.State.String())}
		if o.Err != nil {
			attrs = append(attrs, slog.String("error", o.Err.Error()))
		}
		m.logger.Debug("monitor: probe finished", attrs...)

		select {
		case m.probeCh <- probeResult{id: id, outcome: o}:
		case <-ctx.Done():
		}
	}()
}

// publish recomputes the view and notifies subscribers when it differs from
// the previous one.
func (m *Monitor) publish() {
	services := registry.Services(registry.Publish(m.reg.Records()))

	prev := m.view.Load()
	if prev != nil && slices.Equal(prev.Services, services) {
		return
	}

	var version uint64 = 1
	if prev != nil {
		version = prev.Version + 1
	}
	v := &models.View{Services: services, Version: version, UpdatedAt: time.Now()}
	m.view.Store(v)

	m.subMu.Lock()
	subs := slices.Clone(m.subs)
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(*v)
	}
	m.logger.Debug("monitor: view published", slog.Uint64("version", version), slog.Int("services", len(services)))
}
