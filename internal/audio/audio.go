package audio

import "errors"

// ErrNoDevice is returned by an Enumerator when no default render
// endpoint exists (e.g. all output devices unplugged).
var ErrNoDevice = errors.New("no default render device")

// Device identifies an audio render endpoint. Identity is the ID
// string; devices are never compared by pointer and may vanish between
// enumeration and use.
type Device struct {
	ID   string
	Name string
}

// Format describes one data callback's wave format.
type Format struct {
	SampleRate int
	Channels   int
}

// Enumerator provides access to the OS default render endpoint.
type Enumerator interface {
	// DefaultRenderDevice returns the current default output device,
	// or ErrNoDevice when none is available.
	DefaultRenderDevice() (Device, error)
}

// Notifier pushes device-change hints from the OS. Subscribed
// handlers run on the notification thread and must not block.
type Notifier interface {
	Subscribe(fn func()) (cancel func(), err error)
}

// StreamCallbacks are the events a loopback stream delivers. OnData
// receives interleaved little-endian float32 PCM bytes; OnStopped
// fires when the stream halts, with a non-nil error for unexpected
// stops. Both run on the native audio thread.
type StreamCallbacks struct {
	OnData    func(data []byte, format Format)
	OnStopped func(err error)
}

// Stream is one open native loopback stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Loopback opens loopback-capture streams against render endpoints.
type Loopback interface {
	Open(deviceID string, cb StreamCallbacks) (Stream, error)
}
