package modem

import (
	"math"
	"math/cmplx"
)

// EstimatorMode selects how the channel estimator derives its response,
// per §4.7.
type EstimatorMode int

const (
	EstimatorPreamble EstimatorMode = iota
	EstimatorSound
	EstimatorPayloadQPSK
)

// ChannelResponse is the per-carrier complex gain estimate of §3, plus
// the SYNCP-symbol count the estimate averaged over.
type ChannelResponse struct {
	Gains        []complex128 // length NumberOfCarriers
	SyncpSymbols int
}

// Estimator holds estimator-mode configuration and the QPSK subset of
// carriers used by payload-QPSK re-estimation (d_qpsk_tone_mask).
type Estimator struct {
	Mode         EstimatorMode
	QPSKToneMask ToneMask
}

// NewEstimator builds an Estimator for mode, with qpskMask only
// meaningful (and non-nil) under EstimatorPayloadQPSK.
func NewEstimator(mode EstimatorMode, qpskMask ToneMask) *Estimator {
	return &Estimator{Mode: mode, QPSKToneMask: qpskMask}
}

// EstimateFromPreamble averages the frequency-domain SYNCP periods of a
// received preamble against the known reference, per the Preamble mode
// of §4.7. received must be PreambleSize samples (time domain, real).
func EstimateFromPreamble(received []float64) ChannelResponse {
	refTime := syncpReference
	// Use the 8 non-inverted SYNCP periods (skip the phase-inverted tail).
	nPeriods := 8
	acc := make([]complex128, SyncpSize)
	refSpec := FFT(refTime)
	for p := 0; p < nPeriods; p++ {
		start := p * SyncpSize
		if start+SyncpSize > len(received) {
			break
		}
		window := received[start : start+SyncpSize]
		cx := make([]complex128, SyncpSize)
		for i, v := range window {
			cx[i] = complex(v, 0)
		}
		spec := FFT(cx)
		for k := range acc {
			if refSpec[k] != 0 {
				acc[k] += spec[k] / refSpec[k]
			}
		}
	}
	for k := range acc {
		acc[k] /= complex(float64(nPeriods), 0)
	}
	gains := expandSyncpGainsToCarriers(acc)
	return ChannelResponse{Gains: gains, SyncpSymbols: nPeriods}
}

// expandSyncpGainsToCarriers broadcasts the SyncpSize-bin SYNCP gain
// estimate out to the full NumberOfCarriers space, each SYNCP bin
// covering the syncpCarrierStride carriers it was decimated from.
func expandSyncpGainsToCarriers(syncpGains []complex128) []complex128 {
	out := make([]complex128, NumberOfCarriers)
	for k, g := range syncpGains {
		for s := 0; s < syncpCarrierStride; s++ {
			c := k*syncpCarrierStride + s
			if c < NumberOfCarriers {
				out[c] = g
			}
		}
	}
	return out
}

// EstimateFromSound estimates the response over all active carriers
// using a full sound MPDU of known pseudo-random payload symbols
// (frequency domain, one slice per OFDM symbol) against the known
// transmitted symbols.
func EstimateFromSound(received, known [][]complex128) ChannelResponse {
	n := NumberOfCarriers
	acc := make([]complex128, n)
	counts := make([]int, n)
	for s := range received {
		for c := 0; c < n && c < len(received[s]) && c < len(known[s]); c++ {
			if known[s][c] == 0 {
				continue
			}
			acc[c] += received[s][c] / known[s][c]
			counts[c]++
		}
	}
	for c := range acc {
		if counts[c] > 0 {
			acc[c] /= complex(float64(counts[c]), 0)
		}
	}
	return ChannelResponse{Gains: acc, SyncpSymbols: len(received)}
}

// Refine re-estimates the channel per-frame from payload symbols known
// to be QPSK on e.QPSKToneMask (payload-QPSK mode), then fills NULL-
// carrier gaps by cubic-spline interpolation over magnitude and linear
// interpolation over unwrapped phase.
func (e *Estimator) Refine(prior ChannelResponse, received []complex128, knownQPSK []complex128) ChannelResponse {
	gains := append([]complex128(nil), prior.Gains...)
	var idx []int
	var mag, phase []float64
	for c, active := range e.QPSKToneMask {
		if !active || c >= len(received) || c >= len(knownQPSK) || knownQPSK[c] == 0 {
			continue
		}
		h := received[c] / knownQPSK[c]
		gains[c] = h
		idx = append(idx, c)
		mag = append(mag, cmplx.Abs(h))
		phase = append(phase, cmplx.Phase(h))
	}
	if len(idx) < 2 {
		return ChannelResponse{Gains: gains, SyncpSymbols: prior.SyncpSymbols}
	}
	unwrapPhase(phase)
	magFill := cubicSplineInterp(idx, mag, NumberOfCarriers)
	phaseFill := linearInterp(idx, phase, NumberOfCarriers)
	known := make(map[int]bool, len(idx))
	for _, c := range idx {
		known[c] = true
	}
	for c := 0; c < NumberOfCarriers; c++ {
		if known[c] {
			continue
		}
		gains[c] = cmplx.Rect(magFill[c], phaseFill[c])
	}
	return ChannelResponse{Gains: gains, SyncpSymbols: prior.SyncpSymbols}
}

// unwrapPhase removes 2π discontinuities in place, in ascending-index
// order (the caller's idx/phase arrays are already index-sorted).
func unwrapPhase(phase []float64) {
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		for d > math.Pi {
			phase[i] -= 2 * math.Pi
			d = phase[i] - phase[i-1]
		}
		for d < -math.Pi {
			phase[i] += 2 * math.Pi
			d = phase[i] - phase[i-1]
		}
	}
}

// linearInterp fills a length-n array by linearly interpolating the
// (x[i], y[i]) knot points (x ascending), clamping outside the knot
// range to the nearest endpoint value.
func linearInterp(x []int, y []float64, n int) []float64 {
	out := make([]float64, n)
	for c := 0; c < n; c++ {
		out[c] = interpAt(x, y, float64(c), linearSegment)
	}
	return out
}

// cubicSplineInterp fills a length-n array using a natural cubic spline
// through the (x[i], y[i]) knot points, closed-form tridiagonal solve
// (see DESIGN.md: gonum's stat/interp does not support this split
// magnitude/phase scheme directly, so it is hand-rolled here).
func cubicSplineInterp(x []int, y []float64, n int) []float64 {
	m := len(x)
	if m < 3 {
		return linearInterp(x, y, n)
	}
	xs := make([]float64, m)
	for i, v := range x {
		xs[i] = float64(v)
	}
	h := make([]float64, m-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
	}
	alpha := make([]float64, m)
	for i := 1; i < m-1; i++ {
		alpha[i] = 3/h[i]*(y[i+1]-y[i]) - 3/h[i-1]*(y[i]-y[i-1])
	}
	l := make([]float64, m)
	mu := make([]float64, m)
	z := make([]float64, m)
	l[0] = 1
	for i := 1; i < m-1; i++ {
		l[i] = 2*(xs[i+1]-xs[i-1]) - h[i-1]*mu[i-1]
		mu[i] = h[i] / l[i]
		z[i] = (alpha[i] - h[i-1]*z[i-1]) / l[i]
	}
	l[m-1] = 1
	c := make([]float64, m)
	b := make([]float64, m)
	d := make([]float64, m)
	for j := m - 2; j >= 0; j-- {
		c[j] = z[j] - mu[j]*c[j+1]
		b[j] = (y[j+1]-y[j])/h[j] - h[j]*(c[j+1]+2*c[j])/3
		d[j] = (c[j+1] - c[j]) / (3 * h[j])
	}

	out := make([]float64, n)
	for pos := 0; pos < n; pos++ {
		xv := float64(pos)
		if xv <= xs[0] {
			out[pos] = y[0]
			continue
		}
		if xv >= xs[m-1] {
			out[pos] = y[m-1]
			continue
		}
		seg := 0
		for seg < m-2 && xv > xs[seg+1] {
			seg++
		}
		dx := xv - xs[seg]
		out[pos] = y[seg] + b[seg]*dx + c[seg]*dx*dx + d[seg]*dx*dx*dx
	}
	return out
}

func linearSegment(x0, x1, y0, y1, xv float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (xv - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

func interpAt(x []int, y []float64, xv float64, seg func(x0, x1, y0, y1, xv float64) float64) float64 {
	m := len(x)
	if xv <= float64(x[0]) {
		return y[0]
	}
	if xv >= float64(x[m-1]) {
		return y[m-1]
	}
	for i := 0; i < m-1; i++ {
		if xv >= float64(x[i]) && xv <= float64(x[i+1]) {
			return seg(float64(x[i]), float64(x[i+1]), y[i], y[i+1], xv)
		}
	}
	return y[m-1]
}

// EstimateNoisePSD estimates per-carrier noise variance from
// inter-frame-space samples (§4.7): mean-square of the IFS samples'
// SYNCP-resolution FFT, doubled for the two-sided spectrum.
func EstimateNoisePSD(ifsSamples []float64) []float64 {
	n0 := make([]float64, NumberOfCarriers)
	if len(ifsSamples) < SyncpSize {
		return n0
	}
	numWindows := len(ifsSamples) / SyncpSize
	acc := make([]float64, SyncpSize)
	for w := 0; w < numWindows; w++ {
		window := ifsSamples[w*SyncpSize : (w+1)*SyncpSize]
		cx := make([]complex128, SyncpSize)
		for i, v := range window {
			cx[i] = complex(v, 0)
		}
		spec := FFT(cx)
		for k, v := range spec {
			acc[k] += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	for k := range acc {
		if numWindows > 0 {
			acc[k] = 2 * acc[k] / float64(numWindows*SyncpSize)
		}
	}
	full := expandSyncpGainsToCarriers(complexize(acc))
	for c, v := range full {
		n0[c] = real(v)
	}
	return n0
}

func complexize(x []float64) []complex128 {
	out := make([]complex128, len(x))
	for i, v := range x {
		out[i] = complex(v, 0)
	}
	return out
}

// --- Equalizer -----------------------------------------------------------

// Equalize performs zero-forcing equalization of a received,
// FFT-transformed carrier vector against response.
func Equalize(received []complex128, response ChannelResponse) []complex128 {
	out := make([]complex128, len(received))
	for c := range received {
		h := response.Gains[c]
		if cmplx.Abs(h) > 1e-10 {
			out[c] = received[c] / h
		}
	}
	return out
}
