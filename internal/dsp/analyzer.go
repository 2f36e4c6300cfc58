package dsp

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/rs/zerolog"
)

// Options configure the analysis transform. Window and Scale come
// straight from config; the capture core forwards them without
// interpretation.
type Options struct {
	FFTSize    int    // power of two; default 4096
	Window     string // hann, hamming, blackman, bartlett, none
	Scale      string // linear, sqrt, log
	QueueDepth int    // pending frame budget before drops; default 8
}

func (o Options) withDefaults() Options {
	if o.FFTSize <= 0 {
		o.FFTSize = 4096
	}
	if o.Window == "" {
		o.Window = "hann"
	}
	if o.Scale == "" {
		o.Scale = "linear"
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 8
	}
	return o
}

type frame struct {
	samples []float32
	rate    int
}

// Analyzer turns mono sample frames into normalized magnitude arrays
// on its own worker goroutine. Analyze never blocks: it runs on the
// native audio callback thread, so frames are dropped when the queue
// is full.
type Analyzer struct {
	opts Options
	sink func(raw []float64)
	log  zerolog.Logger

	frames  chan frame
	quit    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64
}

// New starts an analyzer delivering magnitude arrays to sink. The sink
// runs on the analyzer's worker goroutine.
func New(opts Options, sink func(raw []float64), log zerolog.Logger) *Analyzer {
	opts = opts.withDefaults()
	a := &Analyzer{
		opts:   opts,
		sink:   sink,
		log:    log,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		frames: make(chan frame, opts.QueueDepth),
	}
	go a.run()
	return a
}

// Analyze enqueues a mono frame for transformation without blocking.
func (a *Analyzer) Analyze(samples []float32, sampleRate int) {
	if a.closed.Load() || len(samples) == 0 {
		return
	}
	select {
	case a.frames <- frame{samples: samples, rate: sampleRate}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of frames discarded under backpressure.
func (a *Analyzer) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops the worker and waits for it to exit. Safe to call more
// than once.
func (a *Analyzer) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(a.quit)
	<-a.done
	return nil
}

func (a *Analyzer) run() {
	defer close(a.done)

	win := makeWindow(a.opts.Window, a.opts.FFTSize)
	buf := make([]float64, a.opts.FFTSize)
	fill := 0
	rate := 0

	for {
		select {
		case <-a.quit:
			return
		case f := <-a.frames:
			if f.rate != rate {
				// Format change invalidates the partially filled block.
				a.log.Debug().Int("from", rate).Int("to", f.rate).Msg("sample rate changed")
				rate = f.rate
				fill = 0
			}
			for _, s := range f.samples {
				buf[fill] = float64(s)
				fill++
				if fill == len(buf) {
					a.emit(buf, win)
					fill = 0
				}
			}
		}
	}
}

func (a *Analyzer) emit(block, win []float64) {
	n := len(block)
	input := make([]float64, n)
	if win != nil {
		for i := range block {
			input[i] = block[i] * win[i]
		}
	} else {
		copy(input, block)
	}

	spec := fft.FFTReal(input)

	half := n / 2
	raw := make([]float64, half)
	for i := 0; i < half; i++ {
		m := cmplx.Abs(spec[i]) * 2 / float64(n)
		raw[i] = clamp01(a.mapScale(m))
	}

	a.sink(raw)
}

func (a *Analyzer) mapScale(m float64) float64 {
	switch a.opts.Scale {
	case "sqrt":
		return math.Sqrt(m)
	case "log":
		return math.Log10(1 + 9*m)
	default:
		return m
	}
}

func makeWindow(name string, n int) []float64 {
	switch name {
	case "hamming":
		return window.Hamming(n)
	case "blackman":
		return window.Blackman(n)
	case "bartlett":
		return window.Bartlett(n)
	case "none":
		return nil
	default:
		return window.Hann(n)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
