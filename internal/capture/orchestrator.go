package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/spectro-tray/internal/audio"
	"github.com/rs/zerolog"
)

// ErrBusy is returned when a lifecycle operation cannot acquire the
// orchestrator immediately. Callers retry or give up; operations are
// never queued.
var ErrBusy = errors.New("capture lifecycle operation in progress")

// State is the orchestrator's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
	StateReinitializing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateReinitializing:
		return "reinitializing"
	default:
		return "unknown"
	}
}

// Pipeline is the part of the spectrum pipeline the orchestrator
// controls: smoothing memory is dropped on stop so stale energy does
// not bleed into a fresh capture.
type Pipeline interface {
	Reset()
}

// Options are the lifecycle timing knobs.
type Options struct {
	StartRetries int           // attempts per start, default 3
	RetryDelay   time.Duration // fixed delay between attempts, default 500ms
	PollInterval time.Duration // device re-check interval, default 500ms
	SettleDelay  time.Duration // pause between force-stop and restart, default 500ms
	StopTimeout  time.Duration // bounded wait for native stream stop, default 3s
}

func (o Options) withDefaults() Options {
	if o.StartRetries <= 0 {
		o.StartRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 3 * time.Second
	}
	return o
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Monitor  *audio.Monitor
	Loopback audio.Loopback
	Analyzer Analyzer
	Pipeline Pipeline
	Options  Options
	Logger   zerolog.Logger

	// Downmix is the configured downmix mode, forwarded to sessions
	// without interpretation.
	Downmix string

	// OnStateChanged is invoked after every state transition, e.g. to
	// refresh a tray icon. Optional; must return quickly.
	OnStateChanged func(State)

	// OnError is invoked when capture settles idle through a failure:
	// exhausted start retries, or a recovery cycle that found no render
	// device. Optional; must return quickly.
	OnError func()
}

// Orchestrator owns at most one active capture session and serializes
// every lifecycle transition through a single-owner binary semaphore.
// Device loss and unexpected stream stops trigger a single-flight
// reinitialization cycle.
type Orchestrator struct {
	monitor  *audio.Monitor
	loopback audio.Loopback
	analyzer Analyzer
	pipeline Pipeline
	opts     Options
	downmix  string
	log      zerolog.Logger
	onState  func(State)
	onError  func()

	ctx    context.Context
	cancel context.CancelFunc

	sem   chan struct{} // binary semaphore guarding session + transitions
	state atomic.Int32

	// Guarded by sem.
	session    *Session
	pollCancel context.CancelFunc
	pollDone   chan struct{}

	boundDevice atomic.Pointer[audio.Device]

	reinitInFlight atomic.Bool
	bg             sync.WaitGroup
}

func New(cfg Config) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		monitor:  cfg.Monitor,
		loopback: cfg.Loopback,
		analyzer: cfg.Analyzer,
		pipeline: cfg.Pipeline,
		opts:     cfg.Options.withDefaults(),
		downmix:  cfg.Downmix,
		log:      cfg.Logger,
		onState:  cfg.OnStateChanged,
		onError:  cfg.OnError,
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// IsRecording reports whether a capture session is active.
func (o *Orchestrator) IsRecording() bool {
	return o.State() == StateRecording
}

// CurrentDevice returns the device the active session is bound to.
func (o *Orchestrator) CurrentDevice() (audio.Device, bool) {
	if dev := o.boundDevice.Load(); dev != nil {
		return *dev, true
	}
	return audio.Device{}, false
}

// CurrentDeviceName returns the bound device's friendly name, or ""
// when no session is active.
func (o *Orchestrator) CurrentDeviceName() string {
	if dev, ok := o.CurrentDevice(); ok {
		return dev.Name
	}
	return ""
}

// StartCapture starts a capture session on the default render device.
// A duplicate start while recording is a no-op; a start racing another
// transition is rejected with ErrBusy. A missing device or exhausted
// retries leave the orchestrator idle and return nil: both are logged,
// recoverable conditions, not errors surfaced to UI-facing code.
func (o *Orchestrator) StartCapture(ctx context.Context) error {
	if !o.tryAcquire() {
		if o.State() == StateRecording {
			return nil
		}
		return ErrBusy
	}
	defer o.release()

	if o.State() == StateRecording {
		return nil
	}
	return o.startLocked(ctx)
}

// StopCapture stops the active session. Stop while idle is a no-op.
func (o *Orchestrator) StopCapture(ctx context.Context) error {
	if !o.tryAcquire() {
		if o.State() == StateIdle {
			return nil
		}
		return ErrBusy
	}
	defer o.release()

	if o.State() == StateIdle {
		return nil
	}

	o.setState(StateStopping)
	// Preserve the smoothing memory when a reinitialization is about
	// to run, so the restart does not produce a visual discontinuity.
	o.teardownLocked(o.reinitInFlight.Load())
	o.setState(StateIdle)
	return nil
}

// ToggleCapture stops when recording, starts otherwise.
func (o *Orchestrator) ToggleCapture(ctx context.Context) error {
	if o.IsRecording() {
		return o.StopCapture(ctx)
	}
	return o.StartCapture(ctx)
}

// Shutdown tears everything down within the caller's deadline, even if
// a native stop is stuck, and joins outstanding background work.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer o.release()
		if o.State() != StateIdle {
			o.setState(StateStopping)
			o.teardownLocked(false)
			o.setState(StateIdle)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.log.Warn().Msg("shutdown timed out waiting for capture teardown")
		return ctx.Err()
	}

	bgDone := make(chan struct{})
	go func() {
		o.bg.Wait()
		close(bgDone)
	}()
	select {
	case <-bgDone:
		return nil
	case <-ctx.Done():
		o.log.Warn().Msg("shutdown timed out waiting for background work")
		return ctx.Err()
	}
}

// startLocked runs with the semaphore held.
func (o *Orchestrator) startLocked(ctx context.Context) error {
	o.setState(StateStarting)

	dev, ok := o.monitor.GetDefaultDevice()
	if !ok {
		o.log.Warn().Msg("no render device available, staying idle")
		o.setState(StateIdle)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= o.opts.StartRetries; attempt++ {
		err := o.openSessionLocked(dev)
		if err == nil {
			o.boundDevice.Store(&dev)
			o.startPollLoopLocked(dev.ID)
			o.setState(StateRecording)
			o.log.Info().Str("device", dev.Name).Msg("capture started")
			return nil
		}

		lastErr = err
		o.log.Warn().Err(err).Int("attempt", attempt).Str("device", dev.Name).
			Msg("capture start attempt failed")
		if attempt == o.opts.StartRetries {
			break
		}

		select {
		case <-time.After(o.opts.RetryDelay):
		case <-ctx.Done():
			o.setState(StateIdle)
			return ctx.Err()
		case <-o.ctx.Done():
			o.setState(StateIdle)
			return o.ctx.Err()
		}
	}

	o.log.Error().Err(lastErr).Int("attempts", o.opts.StartRetries).
		Msg("capture start exhausted retries")
	o.setState(StateIdle)
	o.notifyError()
	return nil
}

func (o *Orchestrator) openSessionLocked(dev audio.Device) error {
	sess, err := newSession(sessionConfig{
		Device:    dev,
		Loopback:  o.loopback,
		Analyzer:  o.analyzer,
		Downmix:   o.downmix,
		OnStopped: o.handleStreamStopped,
		Logger:    o.log.With().Str("device", dev.Name).Logger(),
	})
	if err != nil {
		return err
	}
	if err := sess.start(); err != nil {
		sess.close(o.opts.StopTimeout)
		return err
	}
	o.session = sess
	return nil
}

// teardownLocked runs with the semaphore held. It cancels the poll
// loop, disposes the session and, unless preserveSmoothing is set,
// drops the pipeline's smoothing memory.
func (o *Orchestrator) teardownLocked(preserveSmoothing bool) {
	if o.pollCancel != nil {
		o.pollCancel()
		select {
		case <-o.pollDone:
		case <-time.After(o.opts.StopTimeout):
			o.log.Warn().Msg("device poll loop did not exit in time")
		}
		o.pollCancel = nil
		o.pollDone = nil
	}

	if o.session != nil {
		o.session.close(o.opts.StopTimeout)
		o.session = nil
	}
	o.boundDevice.Store(nil)

	if !preserveSmoothing && o.pipeline != nil {
		o.pipeline.Reset()
	}
}

// startPollLoopLocked launches the background device re-check loop for
// the bound device. Cancellation is a normal exit.
func (o *Orchestrator) startPollLoopLocked(deviceID string) {
	ctx, cancel := context.WithCancel(o.ctx)
	done := make(chan struct{})
	o.pollCancel = cancel
	o.pollDone = done

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer close(done)

		ticker := time.NewTicker(o.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-o.monitor.Changed():
				o.triggerReinitialize("device change notification")
			case <-ticker.C:
				dev, ok := o.monitor.GetDefaultDevice()
				if !ok {
					o.triggerReinitialize("render device lost")
				} else if dev.ID != deviceID {
					o.triggerReinitialize("default render device changed")
				}
			}
		}
	}()
}

// handleStreamStopped runs on the native audio thread when the stream
// halts on its own. A nil error means a stop we did not ask for but
// that carries no fault; only errored stops trigger recovery.
func (o *Orchestrator) handleStreamStopped(err error) {
	if err == nil {
		return
	}
	o.log.Warn().Err(err).Msg("loopback stream stopped unexpectedly")
	o.triggerReinitialize("stream error")
}

// triggerReinitialize schedules exactly one reinitialization cycle.
// Concurrent triggers while one is in flight no-op; combined with the
// settle delay this bounds recovery frequency and prevents tight
// restart loops.
func (o *Orchestrator) triggerReinitialize(reason string) {
	if !o.reinitInFlight.CompareAndSwap(false, true) {
		return
	}
	o.log.Info().Str("reason", reason).Msg("scheduling capture reinitialization")

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer o.reinitInFlight.Store(false)
		o.reinitialize()
	}()
}

// reinitialize force-stops the current session, waits for the device
// topology to settle, then restarts on whatever default device exists.
// No device means settling to idle until the next change notification
// or an explicit start.
func (o *Orchestrator) reinitialize() {
	select {
	case o.sem <- struct{}{}:
	case <-o.ctx.Done():
		return
	}
	defer o.release()

	if o.State() != StateRecording {
		// Stopped or shut down while the trigger was pending.
		o.log.Debug().Msg("skipping reinitialization, capture no longer active")
		return
	}

	o.setState(StateReinitializing)
	o.teardownLocked(true)

	select {
	case <-time.After(o.opts.SettleDelay):
	case <-o.ctx.Done():
		o.setState(StateIdle)
		return
	}

	if _, ok := o.monitor.GetDefaultDevice(); !ok {
		o.log.Info().Msg("no render device after reinitialization, settling idle")
		o.setState(StateIdle)
		o.notifyError()
		return
	}

	if err := o.startLocked(o.ctx); err != nil {
		o.log.Warn().Err(err).Msg("reinitialization aborted")
	}
}

func (o *Orchestrator) tryAcquire() bool {
	select {
	case o.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) release() {
	<-o.sem
}

func (o *Orchestrator) notifyError() {
	if o.onError != nil {
		o.onError()
	}
}

func (o *Orchestrator) setState(s State) {
	old := State(o.state.Swap(int32(s)))
	if old == s {
		return
	}
	o.log.Debug().Stringer("from", old).Stringer("to", s).Msg("capture state changed")
	if o.onState != nil {
		o.onState(s)
	}
}
