// Package testutil provides shared fakes for the OS and HTTP collaborators.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/portlight/internal/models"
)

// Logger returns a logger that only emits errors, so test output stays quiet.
func Logger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// FakeSystem is a scripted OS surface. All methods are safe for concurrent use.
type FakeSystem struct {
	mu          sync.Mutex
	listeners   []models.Listener
	conns       []models.Connection
	cwds        map[int32]string
	listenErr   error
	connErr     error
	termErr     error
	terminated  []int32
	listenCalls int
	scanDelay   time.Duration
}

// NewFakeSystem creates an empty FakeSystem.
func NewFakeSystem() *FakeSystem {
	return &FakeSystem{cwds: make(map[int32]string)}
}

// SetListeners replaces the listener table.
func (f *FakeSystem) SetListeners(ls ...models.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append([]models.Listener(nil), ls...)
}

// SetConnections replaces the established connection table.
func (f *FakeSystem) SetConnections(cs ...models.Connection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append([]models.Connection(nil), cs...)
}

// SetCwd scripts the working directory of pid. An empty dir makes Cwd fail.
func (f *FakeSystem) SetCwd(pid int32, dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cwds[pid] = dir
}

// FailListeners makes Listeners return err.
func (f *FakeSystem) FailListeners(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenErr = err
}

// FailConnections makes Connections return err.
func (f *FakeSystem) FailConnections(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connErr = err
}

// FailTerminate makes Terminate return err.
func (f *FakeSystem) FailTerminate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.termErr = err
}

// SetScanDelay makes Listeners block for d (or until ctx is done).
func (f *FakeSystem) SetScanDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanDelay = d
}

// ListenCalls returns how many times Listeners ran.
func (f *FakeSystem) ListenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listenCalls
}

// Terminated returns the pids passed to Terminate.
func (f *FakeSystem) Terminated() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.terminated...)
}

// Listeners implements discovery.System.
func (f *FakeSystem) Listeners(ctx context.Context) ([]models.Listener, error) {
	f.mu.Lock()
	f.listenCalls++
	delay := f.scanDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listenErr != nil {
		return nil, f.listenErr
	}
	return append([]models.Listener(nil), f.listeners...), nil
}

// Connections implements discovery.System.
func (f *FakeSystem) Connections(_ context.Context) ([]models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return nil, f.connErr
	}
	return append([]models.Connection(nil), f.conns...), nil
}

// Cwd implements discovery.System.
func (f *FakeSystem) Cwd(_ context.Context, pid int32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, ok := f.cwds[pid]
	if !ok || dir == "" {
		return "", errors.New("no such process")
	}
	return dir, nil
}

// Terminate implements discovery.System.
func (f *FakeSystem) Terminate(_ context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	return f.termErr
}

// FakeProber returns scripted outcomes per URL and counts calls.
type FakeProber struct {
	mu       sync.Mutex
	outcomes map[string]models.ProbeOutcome
	calls    map[string]int
	gate     chan struct{}
}

// NewFakeProber creates a FakeProber. Unscripted URLs report ProbeFailed.
func NewFakeProber() *FakeProber {
	return &FakeProber{
		outcomes: make(map[string]models.ProbeOutcome),
		calls:    make(map[string]int),
	}
}

// SetTitle scripts a successful probe of url.
func (p *FakeProber) SetTitle(url, title string) {
	p.Set(url, models.ProbeOutcome{State: models.ProbeSucceeded, Title: title})
}

// Set scripts an arbitrary outcome for url.
func (p *FakeProber) Set(url string, o models.ProbeOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes[url] = o
}

// Hold makes every probe block until Release is called.
func (p *FakeProber) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
}

// Release unblocks probes held by Hold.
func (p *FakeProber) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// Calls returns how many times url was probed.
func (p *FakeProber) Calls(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

// Probe implements monitor.Prober.
func (p *FakeProber) Probe(ctx context.Context, url string) models.ProbeOutcome {
	p.mu.Lock()
	p.calls[url]++
	gate := p.gate
	o, ok := p.outcomes[url]
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.ProbeOutcome{State: models.ProbeFailed, Err: ctx.Err()}
		}
		// Re-read: the outcome may have been scripted while held.
		p.mu.Lock()
		o, ok = p.outcomes[url]
		p.mu.Unlock()
	}
	if !ok {
		return models.ProbeOutcome{State: models.ProbeFailed, Err: errors.New("connection refused")}
	}
	return o
}
