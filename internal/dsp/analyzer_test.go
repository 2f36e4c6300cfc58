package dsp

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// collectOne builds an analyzer whose sink forwards the first emitted
// magnitude array.
func collectOne(t *testing.T, opts Options) (*Analyzer, chan []float64) {
	t.Helper()
	out := make(chan []float64, 4)
	a := New(opts, func(raw []float64) {
		select {
		case out <- raw:
		default:
		}
	}, zerolog.Nop())
	t.Cleanup(func() { a.Close() })
	return a, out
}

func TestAnalyzerEmitsHalfFFTSizeMagnitudes(t *testing.T) {
	a, out := collectOne(t, Options{FFTSize: 256, Window: "none"})

	a.Analyze(make([]float32, 256), 48000)

	select {
	case raw := <-out:
		if len(raw) != 128 {
			t.Fatalf("expected 128 magnitudes, got %d", len(raw))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for magnitudes")
	}
}

func TestAnalyzerSineWavePeaksAtExpectedBin(t *testing.T) {
	const (
		n    = 512
		k    = 16 // cycles per block
		rate = 48000
	)
	a, out := collectOne(t, Options{FFTSize: n, Window: "none", Scale: "linear"})

	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * float64(k) * float64(i) / n))
	}
	a.Analyze(samples, rate)

	var raw []float64
	select {
	case raw = <-out:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for magnitudes")
	}

	peak := 0
	for i := range raw {
		if raw[i] > raw[peak] {
			peak = i
		}
	}
	if peak != k {
		t.Fatalf("expected peak at bin %d, got %d", k, peak)
	}
	if raw[peak] < 0.9 {
		t.Fatalf("expected near-unit peak magnitude, got %f", raw[peak])
	}
}

func TestAnalyzerOutputStaysNormalized(t *testing.T) {
	a, out := collectOne(t, Options{FFTSize: 128, Window: "hann", Scale: "log"})

	loud := make([]float32, 128)
	for i := range loud {
		loud[i] = 1.0
	}
	a.Analyze(loud, 44100)

	select {
	case raw := <-out:
		for i, v := range raw {
			if v < 0 || v > 1 {
				t.Fatalf("bin %d out of [0,1]: %f", i, v)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for magnitudes")
	}
}

func TestAnalyzerAccumulatesAcrossFrames(t *testing.T) {
	a, out := collectOne(t, Options{FFTSize: 256, Window: "none"})

	// Two half-size frames fill exactly one block.
	a.Analyze(make([]float32, 128), 48000)
	a.Analyze(make([]float32, 128), 48000)

	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("expected a block from accumulated frames")
	}
}

func TestAnalyzerDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	a := New(Options{FFTSize: 64, Window: "none", QueueDepth: 1}, func([]float64) {
		<-block
	}, zerolog.Nop())
	defer func() {
		close(block)
		a.Close()
	}()

	// Stall the worker on its first block, then flood the queue. The
	// audio-thread side must return immediately and count drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			a.Analyze(make([]float32, 64), 48000)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Analyze blocked the caller")
	}

	if a.Dropped() == 0 {
		t.Fatal("expected dropped frames under backpressure")
	}
}

func TestAnalyzerCloseIsIdempotent(t *testing.T) {
	a := New(Options{FFTSize: 64}, func([]float64) {}, zerolog.Nop())
	if err := a.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	// Analyze after close is a no-op, not a panic.
	a.Analyze(make([]float32, 64), 48000)
}
