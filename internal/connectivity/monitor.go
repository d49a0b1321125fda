// Package connectivity reports whether the remote backend is currently
// reachable and pushes a notification on every transition.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Monitor exposes the reachability signal consumed by the sync engine
// and the task list controller.
type Monitor interface {
	// Connected reports the last observed reachability.
	Connected() bool

	// Subscribe returns a channel that receives the new state on every
	// transition. Slow subscribers may miss intermediate flaps; the
	// dependent operations are idempotent or queued, so that is
	// tolerated.
	Subscribe() <-chan bool
}

// probeTimeout bounds a single reachability probe.
const probeTimeout = 5 * time.Second

// ProbeMonitor implements Monitor by periodically issuing a HEAD
// request against the backend.
type ProbeMonitor struct {
	probeURL   string
	interval   time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	online  bool
	subs    []chan bool
	stopCh  chan struct{}
	running bool
}

// NewProbeMonitor creates a monitor probing probeURL every interval.
// The initial state is offline until the first probe completes; call
// CheckNow for a synchronous initial value.
func NewProbeMonitor(probeURL string, interval time.Duration, logger *slog.Logger) *ProbeMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ProbeMonitor{
		probeURL: probeURL,
		interval: interval,
		httpClient: &http.Client{
			Timeout: probeTimeout,
		},
		logger: logger,
	}
}

// Connected reports the last observed reachability.
func (m *ProbeMonitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition listener.
func (m *ProbeMonitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Start probes once synchronously, then keeps probing in the background
// until Stop is called.
func (m *ProbeMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.CheckNow()

	go m.loop(stopCh)
}

// Stop halts the probe loop.
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	m.running = false
}

// CheckNow runs a single probe and returns the resulting state.
func (m *ProbeMonitor) CheckNow() bool {
	online := m.probe()
	m.setOnline(online)
	return online
}

func (m *ProbeMonitor) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.CheckNow()
		}
	}
}

// probe issues a single HEAD request. Any transport error or 5xx means
// unreachable; auth and other 4xx responses still prove reachability.
func (m *ProbeMonitor) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Warn("building probe request", "url", m.probeURL, "error", err)
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode < 500
}

// setOnline records the new state and fans out on a transition.
func (m *ProbeMonitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drop if the subscriber is not keeping up.
		}
	}
}
