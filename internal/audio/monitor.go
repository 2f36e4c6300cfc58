package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Monitor tracks the OS default render endpoint. Enumeration failures
// are logged and reported as "no device", never propagated. Change
// hints from attached notifiers are coalesced into a buffered signal
// channel so notification handlers never block.
type Monitor struct {
	enum Enumerator
	log  zerolog.Logger

	changed chan struct{}

	mu      sync.Mutex
	cancels []func()
	closed  bool
}

func NewMonitor(enum Enumerator, log zerolog.Logger) *Monitor {
	return &Monitor{
		enum:    enum,
		log:     log,
		changed: make(chan struct{}, 1),
	}
}

// GetDefaultDevice returns the current default render endpoint, or
// false when none is available or enumeration fails.
func (m *Monitor) GetDefaultDevice() (Device, bool) {
	dev, err := m.enum.DefaultRenderDevice()
	if err != nil {
		if errors.Is(err, ErrNoDevice) {
			m.log.Debug().Msg("no default render device")
		} else {
			m.log.Warn().Err(err).Msg("device enumeration failed")
		}
		return Device{}, false
	}
	return dev, true
}

// Changed signals that the default device may have changed. The
// channel is buffered with capacity one; bursts coalesce into a
// single pending signal.
func (m *Monitor) Changed() <-chan struct{} {
	return m.changed
}

// Attach subscribes the monitor to a push notification source. The
// handler only raises the change signal; verification happens on the
// orchestrator's poll loop, off the notification thread.
func (m *Monitor) Attach(n Notifier) error {
	cancel, err := n.Subscribe(m.Signal)
	if err != nil {
		return fmt.Errorf("subscribe to device notifications: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		cancel()
		return errors.New("monitor is closed")
	}
	m.cancels = append(m.cancels, cancel)
	return nil
}

// Signal raises the change notification without blocking.
func (m *Monitor) Signal() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Close unsubscribes from all notification sources.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}
