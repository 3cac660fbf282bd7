// Package analyzer computes realtime spectrum frames from the audio sample
// stream for client visualizers.
package analyzer

import (
	"math"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// Config controls the spectral analysis.
type Config struct {
	WindowSize int           // samples per FFT window, power of two
	Bins       int           // spectrum bins per emitted frame
	Interval   time.Duration // minimum time between frames
}

// Analyzer windows incoming mono samples, runs an FFT and folds the
// magnitudes into a fixed number of bins. Frames are throttled to the
// configured interval; samples arriving in between only advance the window.
type Analyzer struct {
	mu   sync.Mutex
	cfg  Config
	hann []float64
	buf  []float64
	last time.Time
	sink func(bins []float64)
	now  func() time.Time

	windows chan []float64
	done    chan struct{}
	once    sync.Once
}

// New creates an analyzer delivering frames to sink. The FFT and the sink
// run on a dedicated goroutine so Feed never stalls the sample producer.
func New(cfg Config, sink func(bins []float64)) *Analyzer {
	a := &Analyzer{
		cfg:     cfg,
		hann:    hannWindow(cfg.WindowSize),
		buf:     make([]float64, 0, cfg.WindowSize*2),
		sink:    sink,
		now:     time.Now,
		windows: make(chan []float64, 4),
		done:    make(chan struct{}),
	}
	go a.drain()
	return a
}

// Feed consumes mono samples from the playback path. Completed windows are
// handed to the drain goroutine without blocking; when it falls behind, the
// window is dropped and the next one supersedes it.
func (a *Analyzer) Feed(samples []float64) {
	a.mu.Lock()

	a.buf = append(a.buf, samples...)
	if len(a.buf) > a.cfg.WindowSize {
		// Keep only the freshest window.
		a.buf = a.buf[len(a.buf)-a.cfg.WindowSize:]
	}
	if len(a.buf) < a.cfg.WindowSize {
		a.mu.Unlock()
		return
	}

	now := a.now()
	if !a.last.IsZero() && now.Sub(a.last) < a.cfg.Interval {
		a.mu.Unlock()
		return
	}
	a.last = now

	window := make([]float64, a.cfg.WindowSize)
	copy(window, a.buf)
	a.mu.Unlock()

	select {
	case a.windows <- window:
	default:
	}
}

// Reset clears buffered samples, for track changes.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = a.buf[:0]
}

// Close stops the drain goroutine. Feed calls after Close are harmless.
func (a *Analyzer) Close() {
	a.once.Do(func() { close(a.done) })
}

func (a *Analyzer) drain() {
	for {
		select {
		case <-a.done:
			return
		case window := <-a.windows:
			a.sink(spectrum(window, a.hann, a.cfg.Bins))
		}
	}
}

// spectrum applies the window function, transforms and folds the magnitude
// halves into bins by averaging.
func spectrum(samples, hann []float64, bins int) []float64 {
	n := len(samples)
	windowed := make([]float64, n)
	for i, s := range samples {
		windowed[i] = s * hann[i]
	}

	coeffs := fft.FFTReal(windowed)

	half := n / 2
	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		mags[i] = 2 * cmplxAbs(coeffs[i]) / float64(n)
	}

	out := make([]float64, bins)
	group := half / bins
	if group == 0 {
		group = 1
	}
	for b := 0; b < bins; b++ {
		start := b * group
		end := start + group
		if end > half {
			end = half
		}
		if start >= half {
			break
		}
		var sum float64
		for i := start; i < end; i++ {
			sum += mags[i]
		}
		out[b] = sum / float64(end-start)
	}
	return out
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
