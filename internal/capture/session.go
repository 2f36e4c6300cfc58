package capture

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/petems/spectro-tray/internal/audio"
	"github.com/rs/zerolog"
)

// Analyzer receives downmixed mono frames from the capture callback.
// Implementations must not block; they run on the native audio thread.
type Analyzer interface {
	Analyze(samples []float32, sampleRate int)
}

type sessionConfig struct {
	Device    audio.Device
	Loopback  audio.Loopback
	Analyzer  Analyzer
	Downmix   string // downmix mode, empty means channel averaging
	OnStopped func(err error)
	Logger    zerolog.Logger
}

// Session binds one native loopback stream to one device, downmixes
// its frames to mono and forwards them to the analyzer. Callbacks may
// still arrive briefly after close is requested; the liveness flag
// gates every callback before it touches shared state.
type Session struct {
	device    audio.Device
	stream    audio.Stream
	analyzer  Analyzer
	downmix   downmixFunc
	onStopped func(err error)
	log       zerolog.Logger

	live atomic.Bool
}

func newSession(cfg sessionConfig) (*Session, error) {
	s := &Session{
		device:    cfg.Device,
		analyzer:  cfg.Analyzer,
		downmix:   downmixerFor(cfg.Downmix),
		onStopped: cfg.OnStopped,
		log:       cfg.Logger,
	}
	s.live.Store(true)

	stream, err := cfg.Loopback.Open(cfg.Device.ID, audio.StreamCallbacks{
		OnData:    s.handleData,
		OnStopped: s.handleStopped,
	})
	if err != nil {
		return nil, fmt.Errorf("open loopback stream on %q: %w", cfg.Device.Name, err)
	}
	s.stream = stream
	return s, nil
}

func (s *Session) start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start loopback stream on %q: %w", s.device.Name, err)
	}
	return nil
}

// handleData runs on the native audio thread.
func (s *Session) handleData(data []byte, format audio.Format) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("capture data callback panicked")
		}
	}()

	if !s.live.Load() {
		return
	}
	if format.Channels <= 0 {
		return
	}

	samples := decodeFloat32(data)
	frames := len(samples) / format.Channels
	if frames == 0 {
		return
	}

	mono := s.downmix(samples, format.Channels, frames)
	s.analyzer.Analyze(mono, format.SampleRate)
}

// handleStopped runs on the native audio thread. Stops we initiated
// are filtered by the liveness flag; only unexpected ones propagate.
func (s *Session) handleStopped(err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("capture stop callback panicked")
		}
	}()

	if !s.live.Load() {
		return
	}
	if s.onStopped != nil {
		s.onStopped(err)
	}
}

// close detaches callbacks, stops the stream within the bounded wait
// and disposes it. Secondary errors are logged and swallowed so
// cleanup always completes. Idempotent.
func (s *Session) close(stopTimeout time.Duration) {
	if !s.live.CompareAndSwap(true, false) {
		return
	}

	done := make(chan error, 1)
	go func() { done <- s.stream.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn().Err(err).Msg("loopback stream stop failed")
		}
	case <-time.After(stopTimeout):
		s.log.Warn().Dur("timeout", stopTimeout).Msg("loopback stream stop timed out, disposing anyway")
	}

	if err := s.stream.Close(); err != nil {
		s.log.Warn().Err(err).Msg("loopback stream close failed")
	}
}
