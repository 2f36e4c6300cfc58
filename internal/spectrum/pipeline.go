package spectrum

import "sync"

// Pipeline coordinates scaling and smoothing of raw magnitude frames
// and caches the last complete result for the render layer.
//
// Process holds procMu; Current holds only cacheMu, so render-thread
// reads never wait on an in-flight scale+smooth pass.
type Pipeline struct {
	procMu        sync.Mutex
	smoother      *Smoother
	baseFactor    float64
	overlayFactor float64

	cacheMu sync.Mutex
	cached  []float64
	hasData bool
}

type Options struct {
	// SmoothingFactor is the normal-mode temporal blend, default 0.3.
	SmoothingFactor float64
	// OverlaySmoothingFactor is used while an overlay render mode is
	// active, default 0.5.
	OverlaySmoothingFactor float64
}

func New(opts Options) *Pipeline {
	base := opts.SmoothingFactor
	if base == 0 {
		base = 0.3
	}
	overlay := opts.OverlaySmoothingFactor
	if overlay == 0 {
		overlay = 0.5
	}
	return &Pipeline{
		smoother:      NewSmoother(base),
		baseFactor:    clamp01(base),
		overlayFactor: clamp01(overlay),
	}
}

// Process downsamples raw to bars bins and applies temporal smoothing.
// The returned slice is the caller's own copy, always of length bars.
//
// The fast path takes the processing lock without blocking. Under
// contention the cached result is served when its length already
// matches the target; otherwise the call blocks and computes fresh, so
// a bar-count change is never answered with a stale-length array.
func (p *Pipeline) Process(raw []float64, bars int) []float64 {
	if bars <= 0 {
		return nil
	}

	if p.procMu.TryLock() {
		defer p.procMu.Unlock()
		return p.computeLocked(raw, bars)
	}

	p.cacheMu.Lock()
	if p.hasData && len(p.cached) == bars {
		out := make([]float64, bars)
		copy(out, p.cached)
		p.cacheMu.Unlock()
		return out
	}
	p.cacheMu.Unlock()

	p.procMu.Lock()
	defer p.procMu.Unlock()
	return p.computeLocked(raw, bars)
}

func (p *Pipeline) computeLocked(raw []float64, bars int) []float64 {
	smoothed := p.smoother.Apply(Scale(raw, bars))

	out := make([]float64, len(smoothed))
	copy(out, smoothed)

	cache := make([]float64, len(smoothed))
	copy(cache, smoothed)

	p.cacheMu.Lock()
	p.cached = cache
	p.hasData = true
	p.cacheMu.Unlock()

	return out
}

// Current returns a copy of the last complete result, or false when no
// data has arrived yet (the render layer shows a placeholder).
func (p *Pipeline) Current() ([]float64, bool) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if !p.hasData {
		return nil, false
	}
	out := make([]float64, len(p.cached))
	copy(out, p.cached)
	return out, true
}

// Reset drops the smoothing memory and the cached result.
func (p *Pipeline) Reset() {
	p.procMu.Lock()
	p.smoother.Reset()
	p.procMu.Unlock()

	p.cacheMu.Lock()
	p.cached = nil
	p.hasData = false
	p.cacheMu.Unlock()
}

// SetOverlayMode switches between the normal and overlay smoothing
// factors.
func (p *Pipeline) SetOverlayMode(on bool) {
	p.procMu.Lock()
	defer p.procMu.Unlock()
	if on {
		p.smoother.SetFactor(p.overlayFactor)
	} else {
		p.smoother.SetFactor(p.baseFactor)
	}
}
