package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"media-dedup/internal/config"
	"media-dedup/internal/logging"
	"media-dedup/internal/metrics"
)

const (
	// DefaultShutdownTimeout bounds how long a rebind waits for in-flight
	// requests before closing their connections.
	DefaultShutdownTimeout = 5 * time.Second

	defaultHost = "0.0.0.0"
	defaultPort = 8080

	// maxApplyPasses bounds how often one config change re-checks the
	// address after a rebind.
	maxApplyPasses = 3
)

// RouteRegistrar adds routes to a freshly created router.
type RouteRegistrar func(r *mux.Router)

// Middleware wraps the router.
type Middleware func(http.Handler) http.Handler

// Manager owns the single active HTTP listener.
type Manager struct {
	store *config.Store

	mu         sync.Mutex
	srv        *http.Server
	listener   net.Listener
	serveDone  chan struct{}
	host       string
	port       int
	running    bool
	registrar  RouteRegistrar
	middleware []Middleware

	reconfiguring   atomic.Bool
	shutdownTimeout time.Duration
	applyWG         sync.WaitGroup
}

// NewManager creates a manager. store is used by OnConfigUpdate and may be
// nil when the manager is driven directly.
func NewManager(store *config.Store) *Manager {
	return &Manager{
		store:           store,
		shutdownTimeout: DefaultShutdownTimeout,
	}
}

// SetRouteRegistrar sets the function that registers routes. It runs on
// every start.
func (m *Manager) SetRouteRegistrar(fn RouteRegistrar) {
	m.mu.Lock()
	m.registrar = fn
	m.mu.Unlock()
}

// Use appends middleware, applied outermost first, on the next start.
func (m *Manager) Use(mw ...Middleware) {
	m.mu.Lock()
	m.middleware = append(m.middleware, mw...)
	m.mu.Unlock()
}

// SetShutdownTimeout changes how long Stop waits during a rebind.
func (m *Manager) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		m.mu.Lock()
		m.shutdownTimeout = d
		m.mu.Unlock()
	}
}

// Start stops any running listener and starts a new one on host:port. Port
// 0 picks a free port; Addr reports it.
func (m *Manager) Start(host string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := m.shutdownContext()
	defer cancel()
	if err := m.stopLocked(ctx); err != nil {
		logging.Warn("Error stopping previous listener: %v", err)
	}
	if err := m.startLocked(host, port); err != nil {
		metrics.ServerRestartsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ServerRestartsTotal.WithLabelValues("success").Inc()
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests until ctx
// ends. Stopping a stopped manager does nothing.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

// IsRunning reports whether a listener is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CurrentHost returns the host of the active or last requested listener.
func (m *Manager) CurrentHost() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

// CurrentPort returns the port of the active or last requested listener as
// it was requested.
func (m *Manager) CurrentPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Addr returns the bound address, or "" when stopped.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Reconfigure moves the listener to host:port. It fails with
// ErrReconfigureInProgress while another reconfiguration is running. When
// the manager is stopped the address is recorded for the next start.
func (m *Manager) Reconfigure(host string, port int) error {
	if !m.reconfiguring.CompareAndSwap(false, true) {
		logging.Warn("Server reconfiguration to %s rejected: another is in progress", joinAddr(host, port))
		return ErrReconfigureInProgress
	}
	defer m.reconfiguring.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		m.host, m.port = host, port
		logging.Debug("Server not running; %s will be used on next start", joinAddr(host, port))
		return nil
	}
	if host == m.host && port == m.port {
		return nil
	}

	prevHost, prevPort := m.host, m.port
	logging.Info("Reconfiguring server: %s -> %s", joinAddr(prevHost, prevPort), joinAddr(host, port))

	ctx, cancel := m.shutdownContext()
	defer cancel()
	if err := m.stopLocked(ctx); err != nil {
		logging.Warn("Error stopping listener during reconfiguration: %v", err)
	}

	err := m.startLocked(host, port)
	if err == nil {
		metrics.ServerRestartsTotal.WithLabelValues("success").Inc()
		return nil
	}
	metrics.ServerRestartsTotal.WithLabelValues("error").Inc()
	logging.Error("Failed to start listener on %s: %v", joinAddr(host, port), err)

	if restoreErr := m.startLocked(prevHost, prevPort); restoreErr != nil {
		logging.Error("Failed to restore listener on %s, server is stopped: %v", joinAddr(prevHost, prevPort), restoreErr)
		m.host, m.port = host, port
		return errors.Join(err, restoreErr)
	}
	metrics.ServerRestartsTotal.WithLabelValues("restored").Inc()
	logging.Warn("Restored listener on %s", joinAddr(prevHost, prevPort))
	return err
}

// OnConfigUpdate implements config.Observer. The rebind runs on its own
// goroutine: a change made from inside one of this server's handlers would
// otherwise wait on its own shutdown. Until Wait returns, CurrentHost and
// CurrentPort may still report the previous address.
func (m *Manager) OnConfigUpdate(event config.UpdateEvent) {
	if m.store == nil || !event.Has(config.KeyServerHost, config.KeyServerPort) {
		return
	}
	m.applyWG.Add(1)
	go func() {
		defer m.applyWG.Done()
		m.applyConfig()
	}()
}

// Wait blocks until rebinds started by configuration changes have finished.
func (m *Manager) Wait() {
	m.applyWG.Wait()
}

// applyConfig rebinds to the configured address. A pass that loses the race
// to another reconfiguration leaves the winner to re-check the store.
func (m *Manager) applyConfig() {
	for range maxApplyPasses {
		host := m.store.GetString(config.KeyServerHost, defaultHost)
		port := m.store.GetInt(config.KeyServerPort, defaultPort)

		m.mu.Lock()
		same := m.host == host && m.port == port
		m.mu.Unlock()
		if same {
			return
		}

		if err := m.Reconfigure(host, port); err != nil {
			return
		}
	}
}

func (m *Manager) startLocked(host string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	addr := joinAddr(host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      m.handlerLocked(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server error on %s: %v", addr, err)
		}
	}()

	m.srv = srv
	m.listener = ln
	m.serveDone = done
	m.host, m.port = host, port
	m.running = true
	metrics.ServerRunning.Set(1)

	logging.Info("Server listening on %s", ln.Addr())
	return nil
}

func (m *Manager) stopLocked(ctx context.Context) error {
	if !m.running {
		return nil
	}

	err := m.srv.Shutdown(ctx)
	if err != nil {
		// Connections still busy after the deadline are cut.
		_ = m.srv.Close()
	}
	<-m.serveDone

	logging.Info("Server on %s stopped", m.listener.Addr())

	m.srv = nil
	m.listener = nil
	m.serveDone = nil
	m.running = false
	metrics.ServerRunning.Set(0)
	return err
}

func (m *Manager) handlerLocked() http.Handler {
	router := mux.NewRouter()
	if m.registrar != nil {
		m.registrar(router)
	}

	var h http.Handler = router
	for i := len(m.middleware) - 1; i >= 0; i-- {
		h = m.middleware[i](h)
	}
	return h
}

func (m *Manager) shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.shutdownTimeout)
}

func joinAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
