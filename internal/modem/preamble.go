package modem

import "math/cmplx"

// angleNumberToValue is ANGLE_NUMBER_TO_VALUE[16]: the 16 complex phases
// a carrier-angle index can select, evenly spaced around the unit circle.
var angleNumberToValue [16]complex128

func init() {
	for k := 0; k < 16; k++ {
		theta := 2 * 3.141592653589793 * float64(k) / 16
		angleNumberToValue[k] = cmplx.Rect(1, theta)
	}
}

// carriersAngleNumber is CARRIERS_ANGLE_NUMBER[NUMBER_OF_CARRIERS]: a
// fixed, PN-derived table assigning one of the 16 phases to every
// carrier. Generated once at init time by a deterministic 5-tap LFSR
// seeded from a fixed non-zero state — an internally-consistent stand-in
// for the real IEEE 1901 table (see DESIGN.md); what matters for §4.6 is
// that it is fixed and identical across runs, which an LFSR guarantees.
var carriersAngleNumber [NumberOfCarriers]int

func init() {
	state := uint32(0x1ACE5)
	for c := 0; c < NumberOfCarriers; c++ {
		nibble := 0
		for b := 0; b < 4; b++ {
			fb := ((state >> 16) ^ (state >> 14) ^ (state >> 13) ^ (state >> 11)) & 1
			state = ((state << 1) | fb) & 0x1FFFF
			nibble = (nibble << 1) | int(fb)
		}
		carriersAngleNumber[c] = nibble
	}
}

// syncpCarrierStride is how far apart (in the full carrier table) the
// carriers feeding one SYNCP symbol are, so that the SYNCP IFFT output
// is exactly periodic with period SyncpSize: the standard HomePlug/IEEE
// 1901 construction of a short "SYNCP" out of a strided subset of the
// full-band carrier table.
const syncpCarrierStride = NumberOfCarriers / SyncpSize

// syncpReference is the single complex-valued SYNCP symbol (length
// SyncpSize) built once from the strided carrier-angle table. It is the
// reference both the TX preamble and the RX matched filter are derived
// from.
var syncpReference []complex128

func init() {
	spectrum := make([]complex128, SyncpSize)
	for k := 0; k < SyncpSize; k++ {
		carrier := k * syncpCarrierStride
		spectrum[k] = angleNumberToValue[carriersAngleNumber[carrier]]
	}
	syncpReference = IFFT(spectrum)
	normalizeComplex(syncpReference)
}

func normalizeComplex(x []complex128) {
	maxAbs := 0.0
	for _, v := range x {
		if a := cmplx.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return
	}
	scale := complex(1/maxAbs, 0)
	for i := range x {
		x[i] *= scale
	}
}

// CreatePreamble builds the fixed, deterministic 10-SYNCP preamble of
// §4.6: ten repetitions of the reference SYNCP symbol with the last 1.5
// SYNCP-worth of samples phase-inverted (negated), the matched-filter
// target for receiver synchronization. create_preamble() is identical
// across runs (§8 property 6).
func CreatePreamble() []complex128 {
	out := make([]complex128, 0, PreambleSize)
	for i := 0; i < 10; i++ {
		out = append(out, syncpReference...)
	}
	invertFrom := PreambleSize - (3 * SyncpSize / 2)
	for i := invertFrom; i < PreambleSize; i++ {
		out[i] = -out[i]
	}
	return out
}

// referencePreamble is the cached result of CreatePreamble, computed
// once: the receiver's matched filter and the TX encoder both read the
// same fixed sequence.
var referencePreamble []complex128

func init() {
	referencePreamble = CreatePreamble()
}

// ReferencePreamble returns the fixed preamble sequence (§4.6/§8
// property 6): identical across calls and across runs.
func ReferencePreamble() []complex128 {
	out := make([]complex128, len(referencePreamble))
	copy(out, referencePreamble)
	return out
}

// MatchedFilterTaps returns the reversed last 1.0-SYNCP window of the
// reference preamble, the correlation kernel the SYNC state (§4.10)
// convolves against the incoming sample window.
func MatchedFilterTaps() []complex128 {
	window := referencePreamble[len(referencePreamble)-SyncpSize:]
	taps := make([]complex128, SyncpSize)
	for i, v := range window {
		taps[SyncpSize-1-i] = v
	}
	return taps
}
