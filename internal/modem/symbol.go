package modem

import "math"

// ModulateSymbol QAM-maps one OFDM symbol's worth of bits onto the
// active carriers of toneMap, returning a NumberOfCarriers-length
// frequency-domain vector (NULL carriers are 0+0i), per §4.8 step 3.
func ModulateSymbol(toneMap ToneMap, bits []byte) []complex128 {
	freq := make([]complex128, len(toneMap))
	pos := 0
	for c, m := range toneMap {
		if m == ModNull {
			continue
		}
		bps := m.BitsPerSymbol()
		if pos+bps > len(bits) {
			break
		}
		freq[c] = NewConstellation(m).Map(bits[pos : pos+bps])
		pos += bps
	}
	return freq
}

// hermitianSpread places carrier values (indices 1..N, DC and Nyquist
// left at 0) into a PayloadFFTSize-length spectrum with Hermitian
// symmetry, so the inverse FFT is real-valued.
func hermitianSpread(carriers []complex128) []complex128 {
	spectrum := make([]complex128, PayloadFFTSize)
	for i, v := range carriers {
		bin := i + 1
		spectrum[bin] = v
		spectrum[PayloadFFTSize-bin] = complex(real(v), -imag(v))
	}
	return spectrum
}

// hermitianExtract is the inverse of hermitianSpread: pulls the N
// carrier bins back out of a received real-signal spectrum.
func hermitianExtract(spectrum []complex128) []complex128 {
	n := (len(spectrum) - 0) / 2
	if n > NumberOfCarriers {
		n = NumberOfCarriers
	}
	carriers := make([]complex128, n)
	for i := range carriers {
		carriers[i] = spectrum[i+1]
	}
	return carriers
}

// IFFTSymbol turns a NumberOfCarriers frequency-domain vector into a
// cyclic-prefixed, real time-domain OFDM symbol (§4.8 step 3: IFFT +
// cyclic prefix).
func IFFTSymbol(freq []complex128, guardInterval int) []float64 {
	spectrum := hermitianSpread(freq)
	td := RealIFFT(spectrum)
	return addCyclicPrefixSamples(td, guardInterval)
}

// FFTSymbol is the inverse of IFFTSymbol: strips the cyclic prefix and
// returns the NumberOfCarriers carrier values via forward FFT.
func FFTSymbol(samples []float64, guardInterval int) []complex128 {
	body := samples
	if len(samples) > guardInterval {
		body = samples[guardInterval:]
	}
	spectrum := RealFFT(body)
	return hermitianExtract(spectrum)
}

func addCyclicPrefixSamples(samples []float64, cpLen int) []float64 {
	n := len(samples)
	if cpLen <= 0 || cpLen > n {
		out := make([]float64, n)
		copy(out, samples)
		return out
	}
	out := make([]float64, cpLen+n)
	copy(out, samples[n-cpLen:])
	copy(out[cpLen:], samples)
	return out
}

// AppendCyclicPostfix appends a cyclic copy of a symbol's own body head
// (the rolloff samples immediately after its guard interval) to its
// tail. ApplyRolloff's cross-fade at a symbol boundary then blends this
// sacrificial copy against the next symbol's guard-interval head —
// both regions FFTSymbol strips unconditionally on decode — instead of
// the previous symbol's unique body samples, so windowing never touches
// a sample either symbol's FFT actually needs.
func AppendCyclicPostfix(symbol []float64, guardInterval, rolloff int) []float64 {
	if rolloff <= 0 || guardInterval+rolloff > len(symbol) {
		return symbol
	}
	out := make([]float64, len(symbol)+rolloff)
	copy(out, symbol)
	copy(out[len(symbol):], symbol[guardInterval:guardInterval+rolloff])
	return out
}

// ApplyRolloff overlap-adds consecutive symbols with a raised-cosine
// window of length RolloffInterval across the boundary (§4.8 step 3).
// Each symbol is expected to already carry an AppendCyclicPostfix tail:
// the overlap then falls entirely within symbol i's sacrificial postfix
// and symbol i+1's guard interval, both discarded by FFTSymbol, so the
// body FFTSymbol extracts from either symbol is never perturbed. The
// returned stream is one RolloffInterval shorter per internal boundary
// than the naive concatenation, plus the final symbol's untrimmed
// postfix trailing the end.
func ApplyRolloff(symbols [][]float64, rolloff int) []float64 {
	if len(symbols) == 0 {
		return nil
	}
	if rolloff <= 0 {
		var out []float64
		for _, s := range symbols {
			out = append(out, s...)
		}
		return out
	}
	win := raisedCosineWindow(rolloff)

	out := append([]float64(nil), symbols[0]...)
	for i := 1; i < len(symbols); i++ {
		cur := symbols[i]
		overlapStart := len(out) - rolloff
		for j := 0; j < rolloff && j < len(cur); j++ {
			out[overlapStart+j] = out[overlapStart+j]*(1-win[j]) + cur[j]*win[j]
		}
		if len(cur) > rolloff {
			out = append(out, cur[rolloff:]...)
		}
	}
	return out
}

// raisedCosineWindow returns n ramp values from 0 to 1 following a
// raised-cosine (half-cycle of cos) shape, used to cross-fade the tail
// of one symbol into the head of the next.
func raisedCosineWindow(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(math.Pi*float64(i+1)/float64(n+1))
	}
	return w
}

// DemapSoftSymbol produces per-bit LLRs for one equalized, received
// frequency-domain symbol against toneMap and per-carrier noise
// estimate n0, following §4.4's soft demapper.
func DemapSoftSymbol(toneMap ToneMap, equalized []complex128, n0 []float64) []float64 {
	var out []float64
	for c, m := range toneMap {
		if m == ModNull {
			continue
		}
		noise := 1e-9
		if c < len(n0) && n0[c] > 0 {
			noise = n0[c]
		}
		out = append(out, NewConstellation(m).DemapSoft(equalized[c], noise)...)
	}
	return out
}
