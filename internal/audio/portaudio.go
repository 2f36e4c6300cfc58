package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const framesPerBuffer = 512

// PortAudio backs the Enumerator and Loopback contracts with the
// portaudio host API. The default output device stands in for the OS
// render endpoint; capture streams are opened input-side against it.
type PortAudio struct {
	log zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPortAudio initializes the portaudio host.
func NewPortAudio(log zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{log: log}, nil
}

// DefaultRenderDevice returns the current default output device.
func (p *PortAudio) DefaultRenderDevice() (Device, error) {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("default output device: %w", err)
	}
	if info == nil {
		return Device{}, ErrNoDevice
	}
	return Device{ID: info.Name, Name: info.Name}, nil
}

// Open opens a loopback stream on the given render endpoint.
func (p *PortAudio) Open(deviceID string, cb StreamCallbacks) (Stream, error) {
	dev, err := p.findDevice(deviceID)
	if err != nil {
		return nil, err
	}

	channels := dev.MaxInputChannels
	if channels <= 0 {
		// Hosts without a loopback input expose zero input channels on
		// render endpoints; assume interleaved stereo.
		p.log.Debug().Str("device", dev.Name).Msg("render endpoint reports no input channels, assuming stereo")
		channels = 2
	}
	format := Format{
		SampleRate: int(dev.DefaultSampleRate),
		Channels:   channels,
	}

	s := &paStream{cb: cb, format: format}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      dev.DefaultSampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, s.handleInput)
	if err != nil {
		return nil, fmt.Errorf("failed to open loopback stream: %w", err)
	}
	s.stream = stream

	return s, nil
}

func (p *PortAudio) findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

// Close terminates the portaudio host.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}

type paStream struct {
	stream *portaudio.Stream
	cb     StreamCallbacks
	format Format
	buf    []byte
}

// handleInput runs on the portaudio callback thread.
func (s *paStream) handleInput(in []float32) {
	if s.cb.OnData == nil {
		return
	}
	need := len(in) * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]
	for i, v := range in {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	s.cb.OnData(buf, s.format)
}

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start loopback stream: %w", err)
	}
	return nil
}

func (s *paStream) Stop() error {
	return s.stream.Stop()
}

func (s *paStream) Close() error {
	return s.stream.Close()
}
