package modem

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// planRegistry caches one gonum FFT plan per transform length. Plan
// construction (fourier.NewCmplxFFT) is the only part guarded by the
// mutex; once built, a plan's Coefficients/Sequence calls run lock-free.
// This is the process-wide FFT plan lock the engine's concurrency model
// requires: every PhyService of a given carrier count shares the same
// plan instead of re-deriving twiddle factors per call.
type planRegistry struct {
	mu    sync.Mutex
	plans map[int]*fourier.CmplxFFT
}

var registry = &planRegistry{plans: make(map[int]*fourier.CmplxFFT)}

func (r *planRegistry) get(n int) *fourier.CmplxFFT {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[n]
	if !ok {
		plan = fourier.NewCmplxFFT(n)
		r.plans[n] = plan
	}
	return plan
}

// FFT computes the forward Discrete Fourier Transform of x. Any length is
// supported; gonum's plan picks the fastest decomposition available for
// n, rather than requiring n to be a power of two.
func FFT(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		out := make([]complex128, n)
		copy(out, x)
		return out
	}
	plan := registry.get(n)
	return plan.Coefficients(nil, x)
}

// IFFT computes the inverse Discrete Fourier Transform of x, normalized
// by 1/n (gonum's Sequence returns the unnormalized inverse transform).
func IFFT(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		out := make([]complex128, n)
		copy(out, x)
		return out
	}
	plan := registry.get(n)
	out := plan.Sequence(nil, x)
	scale := complex(1.0/float64(n), 0)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// RealFFT performs a forward FFT on real-valued input.
func RealFFT(x []float64) []complex128 {
	n := len(x)
	cx := make([]complex128, n)
	for i, v := range x {
		cx[i] = complex(v, 0)
	}
	return FFT(cx)
}

// RealIFFT performs an inverse FFT and returns only the real part,
// discarding residual imaginary noise from floating point rounding.
func RealIFFT(x []complex128) []float64 {
	result := IFFT(x)
	out := make([]float64, len(result))
	for i, v := range result {
		out[i] = real(v)
	}
	return out
}
