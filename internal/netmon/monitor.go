// Package netmon tracks connectivity for the whole process. It keeps one
// boolean online flag, fans out changes to registered listeners, and
// corrects the flag with a periodic active probe against the remote API.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arthurgc/graceline/internal/bus"
)

// Listener receives connectivity changes.
type Listener func(online bool)

// Options configures the active probe.
type Options struct {
	ProbeURL      string
	ProbeTimeout  time.Duration // hard cap on a single probe
	ProbeInterval time.Duration // poll period for the background loop
}

const (
	defaultProbeTimeout  = 5 * time.Second
	defaultProbeInterval = 30 * time.Second
)

// Monitor is the process-wide connectivity state. Constructed once at
// startup and injected into every consumer.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []registration
	nextID    int

	opts   Options
	client *http.Client
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

type registration struct {
	id int
	fn Listener
}

// New creates a monitor. The flag starts online; the first probe corrects
// it if the network is actually down.
func New(opts Options, b *bus.Bus, logger *zap.Logger) *Monitor {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	return &Monitor{
		online: true,
		opts:   opts,
		client: &http.Client{Timeout: opts.ProbeTimeout},
		bus:    b,
		logger: logger,
	}
}

// IsOnline returns the current cached flag. Never blocks on I/O.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates the flag. Setting the current value is a no-op; on a
// change every registered listener is invoked synchronously with the new
// value, in registration order. A panicking listener is logged and must
// not prevent the rest from running.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	// Iterate over a snapshot so a listener may register or unregister
	// without invalidating this pass.
	snapshot := make([]registration, len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("connectivity changed", zap.Bool("online", online))
	}
	for _, reg := range snapshot {
		m.invoke(reg.fn, online)
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindOnlineChanged,
			Timestamp: time.Now(),
			Payload:   online,
		})
	}
}

func (m *Monitor) invoke(fn Listener, online bool) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.Error("connectivity listener panicked", zap.Any("panic", r))
		}
	}()
	fn(online)
}

// AddListener registers a callback and returns a function that removes
// exactly that registration.
func (m *Monitor) AddListener(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, registration{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, reg := range m.listeners {
			if reg.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// CheckConnection performs an active probe and feeds the result into
// SetOnline. A probe that errors or times out means offline; it never
// propagates an error to the caller.
func (m *Monitor) CheckConnection(ctx context.Context) bool {
	online := m.probe(ctx)
	m.SetOnline(online)
	return online
}

func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.opts.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Start launches the recurring probe loop. The first probe fires
// immediately so the startup default is corrected quickly.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.loop(ctx)
}

// Stop stops the probe loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	m.CheckConnection(ctx)

	ticker := time.NewTicker(m.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckConnection(ctx)
		case <-ctx.Done():
			return
		}
	}
}
