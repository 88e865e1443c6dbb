// Package lifecycle supervises the local server's listening socket.
//
// A Manager owns at most one active listener. It decides which port to try
// (persisted last-good port first, then a range scan), binds it on loopback
// only, recovers from bind races by blacklisting the port for the session
// and restarting with backoff, and persists every successfully bound port so
// the next start can reuse it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bridgeport-dev/bridgeport/internal/logging"
	"github.com/bridgeport-dev/bridgeport/internal/portscan"
	"github.com/bridgeport-dev/bridgeport/internal/storage"
	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

const (
	// persistKey is where the last successfully bound port is stored.
	persistKey = "server/last-port"

	// DefaultAddrInUseBackoff is the restart delay after a bind race.
	DefaultAddrInUseBackoff = 1000 * time.Millisecond
	// DefaultErrorBackoff is the restart delay after any other socket error.
	DefaultErrorBackoff = 5000 * time.Millisecond
	// DefaultRenotifyDelay is the pause before Running is emitted a second
	// time. The status sink is best-effort, so Running is delivered
	// at-least-once rather than exactly once.
	DefaultRenotifyDelay = 250 * time.Millisecond
)

// persistedPort is the durable record of the last successful bind.
type persistedPort struct {
	Port int `json:"port"`
}

// StatusSink receives lifecycle transitions. Delivery is one-way and
// best-effort; implementations must not block.
type StatusSink func(types.StatusUpdate)

// Config tunes a Manager. Zero values fall back to defaults.
type Config struct {
	Server types.ServerConfig

	AddrInUseBackoff time.Duration
	ErrorBackoff     time.Duration
	RenotifyDelay    time.Duration
}

func (c Config) addrInUseBackoff() time.Duration {
	if c.AddrInUseBackoff <= 0 {
		return DefaultAddrInUseBackoff
	}
	return c.AddrInUseBackoff
}

func (c Config) errorBackoff() time.Duration {
	if c.ErrorBackoff <= 0 {
		return DefaultErrorBackoff
	}
	return c.ErrorBackoff
}

func (c Config) renotifyDelay() time.Duration {
	if c.RenotifyDelay <= 0 {
		return DefaultRenotifyDelay
	}
	return c.RenotifyDelay
}

// Manager is the server lifecycle state machine:
// Starting -> Running -> (Error -> Starting after backoff) -> Stopped.
// Stopped is terminal and reachable only through Dispose.
type Manager struct {
	cfg     Config
	scanner *portscan.Scanner
	probe   portscan.Prober
	store   *storage.Store
	sink    StatusSink

	// serve, when set, is started on a goroutine with every new listener.
	// Its error return feeds the runtime error handling.
	serve func(net.Listener) error

	// listen is replaceable in tests to simulate bind failures.
	listen func(ctx context.Context, addr string) (net.Listener, error)

	mu           sync.Mutex
	blacklist    map[int]struct{}
	listener     net.Listener
	status       types.ServerStatus
	currentPort  int
	disposed     bool
	restartTimer *time.Timer

	// range of the current start attempt, reused by restarts
	scanStart int
	scanEnd   int
	baseCtx   context.Context
}

// New creates a Manager. serve may be nil when the caller drives the
// listener itself.
func New(cfg Config, scanner *portscan.Scanner, probe portscan.Prober, store *storage.Store, sink StatusSink, serve func(net.Listener) error) *Manager {
	if sink == nil {
		sink = func(types.StatusUpdate) {}
	}
	m := &Manager{
		cfg:       cfg,
		scanner:   scanner,
		probe:     probe,
		store:     store,
		sink:      sink,
		serve:     serve,
		blacklist: make(map[int]struct{}),
		status:    types.StatusStopped,
		baseCtx:   context.Background(),
	}
	m.listen = func(ctx context.Context, addr string) (net.Listener, error) {
		var lc net.ListenConfig
		return lc.Listen(ctx, "tcp", addr)
	}
	return m
}

// StartServer finds a port in [start, end] and binds it. It returns a
// disposer; on terminal failure (no port found) the disposer is a no-op and
// no restart is scheduled.
func (m *Manager) StartServer(ctx context.Context, start, end int) func() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return func() {}
	}
	m.scanStart, m.scanEnd = start, end
	m.baseCtx = ctx
	m.mu.Unlock()

	if ok := m.startAttempt(ctx, start, end); !ok {
		return func() {}
	}
	return m.Dispose
}

// startAttempt runs one Starting->Running transition. It returns false only
// on the terminal no-port-found failure.
func (m *Manager) startAttempt(ctx context.Context, start, end int) bool {
	m.setStatus(types.StatusStarting, 0, "")

	port, found := m.choosePort(ctx, start, end)
	m.mu.Lock()
	if m.disposed {
		// A scan in flight when Dispose was called completes, but its
		// result is discarded here.
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	if !found {
		msg := fmt.Sprintf("no available port in range %d-%d", start, end)
		logging.Error().Int("start", start).Int("end", end).Str("phase", "scan").Msg(msg)
		m.setStatus(types.StatusError, 0, msg)
		return false
	}

	if err := m.bind(ctx, port); err != nil {
		m.handleBindError(port, err)
		return true
	}
	return true
}

// choosePort prefers the persisted last-good port, then scans.
func (m *Manager) choosePort(ctx context.Context, start, end int) (int, bool) {
	excluded := m.blacklistCopy()

	var preferred []int
	var state persistedPort
	if err := m.store.Get(ctx, persistKey, &state); err == nil {
		if _, banned := excluded[state.Port]; !banned {
			// Sticky fast path: the last-good port skips the full scan.
			if m.probe.Probe(ctx, state.Port).Available() {
				logging.Info().Int("port", state.Port).Msg("reusing last successful port")
				return state.Port, true
			}
			preferred = append(preferred, state.Port)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		logging.Warn().Err(err).Str("phase", "persisted-state").Msg("failed to read last successful port")
	}
	preferred = append(preferred, m.cfg.Server.PreferredPorts...)

	opts := portscan.Options{
		Timeout:        time.Duration(m.cfg.Server.ProbeTimeoutMs) * time.Millisecond,
		Concurrency:    m.cfg.Server.ScanConcurrency,
		Retries:        m.cfg.Server.ProbeRetries,
		PreferredPorts: preferred,
		ExcludedPorts:  excluded,
	}

	port, err := m.scanner.FindAvailablePort(ctx, start, end, opts)
	if err != nil {
		return 0, false
	}
	return port, true
}

// bind opens the loopback listener and transitions to Running. The previous
// listener, if any, is closed first so at most one socket is ever active.
func (m *Manager) bind(ctx context.Context, port int) error {
	m.mu.Lock()

	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	if m.listener != nil {
		m.listener.Close()
		m.listener = nil
	}

	ln, err := m.listen(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.listener = ln
	m.currentPort = port
	m.status = types.StatusRunning
	m.mu.Unlock()

	// Persistence and sink delivery happen outside the lock so a sink may
	// call back into Session or Port.
	if err := m.store.Put(ctx, persistKey, persistedPort{Port: port}); err != nil {
		logging.Warn().Err(err).Int("port", port).Str("phase", "persist").Msg("failed to persist port")
	}

	logging.Info().Int("port", port).Msg("server listening")
	m.sink(types.StatusUpdate{Status: types.StatusRunning, Port: port})

	// Second Running notification: the sink is best-effort, so the
	// transition is delivered at-least-once.
	time.AfterFunc(m.cfg.renotifyDelay(), func() {
		m.mu.Lock()
		stillRunning := !m.disposed && m.status == types.StatusRunning && m.currentPort == port
		m.mu.Unlock()
		if stillRunning {
			m.sink(types.StatusUpdate{Status: types.StatusRunning, Port: port})
		}
	})

	if m.serve != nil {
		go m.runServe(ln, port)
	}
	return nil
}

// runServe drives the caller's serve loop and feeds its failure back into
// the restart logic.
func (m *Manager) runServe(ln net.Listener, port int) {
	err := m.serve(ln)
	if err == nil {
		return
	}
	m.mu.Lock()
	relevant := !m.disposed && m.listener == ln
	m.mu.Unlock()
	if relevant {
		m.NotifySocketError(port, err)
	}
}

// NotifySocketError handles a socket-level error observed after a bind
// attempt. An address-in-use race clears the persisted port, blacklists the
// port for the session, and restarts fast; anything else restarts slow and
// leaves persisted state alone. Errors arriving after Dispose are dropped:
// Stopped is terminal.
func (m *Manager) NotifySocketError(port int, err error) {
	if errors.Is(err, syscall.EADDRINUSE) {
		m.mu.Lock()
		if m.disposed {
			m.mu.Unlock()
			return
		}
		m.blacklist[port] = struct{}{}
		m.status = types.StatusError
		m.mu.Unlock()
		logging.Warn().Int("port", port).Err(err).Str("phase", "bind").Msg("port taken by another process")
		m.clearPersistedPort(port)
		m.sink(types.StatusUpdate{Status: types.StatusError, Port: port, Message: "address in use"})
		m.scheduleRestart(m.cfg.addrInUseBackoff())
		return
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.status = types.StatusError
	m.mu.Unlock()
	logging.Error().Int("port", port).Err(err).Str("phase", "serve").Msg("socket error, scheduling restart")
	m.sink(types.StatusUpdate{Status: types.StatusError, Port: port, Message: err.Error()})
	m.scheduleRestart(m.cfg.errorBackoff())
}

// handleBindError routes a failed bind through the socket error handling.
func (m *Manager) handleBindError(port int, err error) {
	m.NotifySocketError(port, err)
}

// clearPersistedPort removes the durable last-good port, but only when that
// exact port is the one that failed.
func (m *Manager) clearPersistedPort(failedPort int) {
	ctx := context.Background()
	var state persistedPort
	if err := m.store.Get(ctx, persistKey, &state); err != nil || state.Port != failedPort {
		return
	}
	if err := m.store.Delete(ctx, persistKey); err != nil {
		logging.Warn().Err(err).Str("phase", "persist").Msg("failed to clear persisted port")
	}
}

// scheduleRestart arms the restart timer. The restart is abandoned if the
// manager is disposed by the time the timer fires.
func (m *Manager) scheduleRestart(after time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return
	}
	if m.restartTimer != nil {
		m.restartTimer.Stop()
	}
	start, end, ctx := m.scanStart, m.scanEnd, m.baseCtx
	m.restartTimer = time.AfterFunc(after, func() {
		m.mu.Lock()
		if m.disposed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.startAttempt(ctx, start, end)
	})
}

// Dispose closes the active listener and ends the session. Idempotent;
// after Dispose no state transition can occur, even from a pending restart.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	if m.restartTimer != nil {
		m.restartTimer.Stop()
		m.restartTimer = nil
	}
	if m.listener != nil {
		m.listener.Close()
		m.listener = nil
	}
	m.status = types.StatusStopped
	m.currentPort = 0
	m.mu.Unlock()

	logging.Info().Msg("server disposed")
	m.sink(types.StatusUpdate{Status: types.StatusStopped})
}

// setStatus records and emits a lifecycle transition.
func (m *Manager) setStatus(status types.ServerStatus, port int, msg string) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.mu.Unlock()
	m.sink(types.StatusUpdate{Status: status, Port: port, Message: msg})
}

// Session returns the externally visible state.
func (m *Manager) Session() types.ServerSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.ServerSession{
		Status:      m.status,
		CurrentPort: m.currentPort,
		Disposed:    m.disposed,
	}
}

// Port returns the bound port, or 0 when not running.
func (m *Manager) Port() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPort
}

// Blacklisted reports whether a port is excluded for this session.
func (m *Manager) Blacklisted(port int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[port]
	return ok
}

func (m *Manager) blacklistCopy() map[int]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]struct{}, len(m.blacklist))
	for p := range m.blacklist {
		out[p] = struct{}{}
	}
	return out
}
