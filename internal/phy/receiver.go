package phy

import (
	"log"

	"github.com/ieee1901/plcphy/internal/modem"
)

// rxState enumerates the receiver synchronization/framing states of
// §4.10, walked strictly sequentially by Process.
type rxState int

const (
	rxReset rxState = iota
	rxSearch
	rxSync
	rxCopyPreamble
	rxCopyFrameControl
	rxCopyPayload
	rxSenseSpace
	rxConsumeSpace
	rxIdle
	rxHalt
)

func (s rxState) String() string {
	switch s {
	case rxReset:
		return "RESET"
	case rxSearch:
		return "SEARCH"
	case rxSync:
		return "SYNC"
	case rxCopyPreamble:
		return "COPY_PREAMBLE"
	case rxCopyFrameControl:
		return "COPY_FRAME_CONTROL"
	case rxCopyPayload:
		return "COPY_PAYLOAD"
	case rxSenseSpace:
		return "SENSE_SPACE"
	case rxConsumeSpace:
		return "CONSUME_SPACE"
	case rxIdle:
		return "IDLE"
	case rxHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// Receiver drives the sample-by-sample synchronization and framing
// state machine of §4.10: real samples in, frame-aligned PPDU decodes
// and MAC-directed messages out. It owns no sample buffers beyond its
// own per-frame scratch (§4.9) and is re-entrant across Process calls —
// the minimum-bytes-needed-per-state concept the GNU Radio source
// expressed via forecast() is exposed as MinSamplesNeeded instead (§9
// Open Questions).
type Receiver struct {
	toneMask      modem.ToneMask
	broadcastMask modem.ToneMask
	estimator     *modem.Estimator

	state   rxState
	pending []float64

	// SEARCH scratch.
	plateau   int
	searchPos int

	// SYNC/COPY_PREAMBLE scratch.
	frameStart int

	response  modem.ChannelResponse
	noisePSD  []float64
	fc        modem.FrameControlFields
	toneMap   modem.ToneMap

	Stats  Stats
	Logger *log.Logger
}

// NewReceiver builds a Receiver bound to the three immutable masks and
// channel-estimation mode of §3's lifecycle. logger may be nil.
func NewReceiver(toneMask, broadcastMask, qpskToneMask modem.ToneMask, mode modem.EstimatorMode, logger *log.Logger) *Receiver {
	r := &Receiver{
		toneMask:      toneMask,
		broadcastMask: broadcastMask,
		estimator:     modem.NewEstimator(mode, qpskToneMask),
		noisePSD:      make([]float64, modem.NumberOfCarriers),
		Logger:        logger,
	}
	for i := range r.noisePSD {
		r.noisePSD[i] = modem.MinEnergy
	}
	r.resetState()
	return r
}

func (r *Receiver) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

func (r *Receiver) transition(to rxState) {
	r.logf("phy: receiver %s -> %s", r.state, to)
	r.state = to
}

// resetState implements the RESET row: reset offsets/counters, then
// fall through to SEARCH. SEARCH computes each correlation window from
// scratch, so there is no running sum to seed.
func (r *Receiver) resetState() {
	r.plateau = 0
	r.searchPos = 0
	r.frameStart = 0
	r.transition(rxSearch)
}

// MinSamplesNeeded reports the fixed sample window the current state
// works on. It does not subtract samples already pending, and for
// COPY_PREAMBLE it does not add the frame-start offset.
func (r *Receiver) MinSamplesNeeded() int {
	switch r.state {
	case rxSearch:
		return 2 * modem.SyncpSize
	case rxSync:
		return modem.SyncLength + modem.SyncpSize
	case rxCopyPreamble:
		return modem.PreambleSize
	case rxCopyFrameControl:
		return FrameControlSymbolLen
	case rxCopyPayload:
		return PayloadSamplesLen(r.fc)
	case rxSenseSpace, rxConsumeSpace:
		return modem.MinInterFrameSpace
	default:
		return 0
	}
}

// Enable moves the receiver out of IDLE/HALT and back into RESET,
// per §4.10's "external re-enable".
func (r *Receiver) Enable() {
	r.transition(rxReset)
	r.resetState()
}

// Halt moves the receiver into HALT: pass-through, no state changes,
// until Enable is called.
func (r *Receiver) Halt() { r.transition(rxHalt) }

// Idle moves the receiver into IDLE: pass-through, no state changes,
// until Enable is called.
func (r *Receiver) Idle() { r.transition(rxIdle) }

// Process appends samples to the receiver's pending buffer and advances
// the state machine as far as the buffered samples allow, returning any
// MAC-directed messages produced along the way. It may be called with
// however many samples the caller has on hand (§9 Open Questions); the
// unconsumed remainder is kept for the next call.
func (r *Receiver) Process(samples []float64) []Message {
	r.pending = append(r.pending, samples...)

	var out []Message
	for {
		switch r.state {
		case rxIdle, rxHalt:
			return out

		case rxReset:
			r.resetState()

		case rxSearch:
			if !r.stepSearch() {
				return out
			}

		case rxSync:
			if !r.stepSync() {
				return out
			}

		case rxCopyPreamble:
			if !r.stepCopyPreamble() {
				return out
			}

		case rxCopyFrameControl:
			if !r.stepCopyFrameControl() {
				return out
			}

		case rxCopyPayload:
			msgs, ok := r.stepCopyPayload()
			if !ok {
				return out
			}
			out = append(out, msgs...)

		case rxSenseSpace:
			msg, ok := r.stepSenseSpace()
			if !ok {
				return out
			}
			out = append(out, msg...)

		case rxConsumeSpace:
			msg, ok := r.stepConsumeSpace()
			if !ok {
				return out
			}
			out = append(out, msg)
		}
	}
}

// stepSearch implements the SEARCH row: a sliding-window autocorrelation
// between samples k and k+SYNCP, normalized by the energy of the second
// window, looking for a plateau of MIN_PLATEAU consecutive windows above
// THRESHOLD with at least MIN_ENERGY. The plateau counter resets on any
// violation (no hysteresis, per the edge policy).
func (r *Receiver) stepSearch() bool {
	k := r.searchPos
	if k+2*modem.SyncpSize > len(r.pending) {
		return false
	}
	w1 := r.pending[k : k+modem.SyncpSize]
	w2 := r.pending[k+modem.SyncpSize : k+2*modem.SyncpSize]

	var corr, energy float64
	for i := range w1 {
		corr += w1[i] * w2[i]
		energy += w2[i] * w2[i]
	}
	ratio := 0.0
	if energy > 0 {
		ratio = corr / energy
	}

	if ratio >= modem.SearchThreshold && energy >= modem.MinEnergy {
		r.plateau++
	} else {
		r.plateau = 0
	}
	r.searchPos++

	if float64(r.plateau) >= modem.MinPlateau {
		triggerStart := r.searchPos - r.plateau
		if triggerStart < 0 {
			triggerStart = 0
		}
		r.pending = r.pending[triggerStart:]
		r.searchPos = 0
		r.plateau = 0
		r.transition(rxSync)
	}
	return true
}

// stepSync implements the SYNC row: a matched filter built from the
// reversed last 1.0-SYNCP window of the reference preamble, run over a
// SYNC_LENGTH window; d_frame_start is derived from the index where
// corr[i]·corr[i+SYNCP] peaks. Ties resolve to the smaller index (the
// edge policy); a negative frame start resets.
func (r *Receiver) stepSync() bool {
	need := modem.SyncLength + modem.SyncpSize
	if len(r.pending) < need {
		return false
	}
	taps := matchedFilterRealTaps()
	corr := make([]float64, modem.SyncLength)
	for j := range corr {
		var acc float64
		window := r.pending[j : j+modem.SyncpSize]
		for n, t := range taps {
			acc += t * window[n]
		}
		corr[j] = acc
	}

	// corr has SyncLength (= 2*SyncpSize) entries, so i+SyncpSize stays in
	// range for i in [0, SyncpSize). Ties resolve to the smaller index
	// (the edge policy), satisfied by a strict ">" update.
	best := 0
	bestVal := corr[0] * corr[modem.SyncpSize]
	for i := 1; i < modem.SyncpSize; i++ {
		v := corr[i] * corr[i+modem.SyncpSize]
		if v > bestVal {
			bestVal = v
			best = i
		}
	}

	// i (the SEARCH window index the formula is relative to) is 0 here:
	// pending was already rebased to the SEARCH trigger point.
	frameStart := int(2.5*float64(modem.SyncpSize)) + best
	if frameStart < 0 {
		r.logf("phy: sync divergence (frame start %d), resetting", frameStart)
		r.resetState()
		return true
	}
	r.frameStart = frameStart
	r.transition(rxCopyPreamble)
	return true
}

// stepCopyPreamble implements the COPY_PREAMBLE row: buffers samples
// until d_frame_start is reached, then hands the aligned PreambleSize
// window to the channel estimator.
func (r *Receiver) stepCopyPreamble() bool {
	need := r.frameStart + modem.PreambleSize
	if len(r.pending) < need {
		return false
	}
	window := r.pending[r.frameStart : r.frameStart+modem.PreambleSize]
	r.response = modem.EstimateFromPreamble(window)
	r.pending = r.pending[need:]
	r.transition(rxCopyFrameControl)
	return true
}

// stepCopyFrameControl implements the COPY_FRAME_CONTROL row: collects
// one FC symbol and attempts to decode it; failure resets with no
// message (§4.11).
func (r *Receiver) stepCopyFrameControl() bool {
	need := FrameControlSymbolLen
	if len(r.pending) < need {
		return false
	}
	fc, err := DecodeFrameControl(r.pending[:need], r.response, r.noisePSD, r.broadcastMask)
	r.pending = r.pending[need:]
	if err != nil {
		r.logf("phy: frame control decode failed: %v", err)
		r.resetState()
		return true
	}
	if !supportedDelimiter(fc.Delimiter) {
		r.logf("phy: unsupported delimiter type %v", fc.Delimiter)
		r.resetState()
		return true
	}
	r.fc = fc
	r.transition(rxCopyPayload)
	return true
}

// stepCopyPayload implements the COPY_PAYLOAD row: collects payload_size
// samples, decodes, and emits the delimiter-appropriate message.
func (r *Receiver) stepCopyPayload() ([]Message, bool) {
	need := PayloadSamplesLen(r.fc)
	if len(r.pending) < need {
		return nil, false
	}
	r.Stats.recordAttempt()
	payloadSamples := r.pending[:need]
	decoded, err := DecodePPDU(payloadSamples, r.fc, r.response, r.noisePSD, r.broadcastMask, r.toneMap)
	r.pending = r.pending[need:]
	if err != nil {
		r.logf("phy: payload decode failed: %v", err)
		r.resetState()
		return nil, true
	}
	r.Stats.recordDecoded()
	for _, ok := range decoded.BlockOK {
		r.Stats.recordBlockResult(ok)
	}
	r.refineChannelEstimate(payloadSamples, decoded)

	var msgs []Message
	switch r.fc.Delimiter {
	case modem.DelimiterSACK:
		msgs = append(msgs, NewRxSACK(decoded.Bytes))
		r.transition(rxConsumeSpace)
	case modem.DelimiterSound:
		msgs = append(msgs, NewRxSound())
		r.transition(rxSenseSpace)
	default: // SOF, RSOF
		msgs = append(msgs, NewRxSOF(decoded.Bytes))
		r.transition(rxSenseSpace)
	}
	return msgs, true
}

// refineChannelEstimate implements the two post-preamble estimator modes
// of §4.7 that EstimateFromPreamble alone can't serve: Sound mode
// re-estimates the full response from a Sound MPDU's known
// pseudo-random payload, and payload-QPSK mode re-estimates per-frame
// from the subset of carriers r.estimator.QPSKToneMask marks as QPSK,
// by decision-directed comparison against the frame just decoded.
func (r *Receiver) refineChannelEstimate(payloadSamples []float64, decoded DecodedPayload) {
	switch r.estimator.Mode {
	case modem.EstimatorSound:
		if r.fc.Delimiter != modem.DelimiterSound {
			return
		}
		received := RawPayloadSymbols(payloadSamples, r.fc)
		known, _ := KnownSoundFreqSymbols(r.toneMask, r.broadcastMask)
		n := len(known)
		if len(received) < n {
			n = len(received)
		}
		if n == 0 {
			return
		}
		r.response = modem.EstimateFromSound(received[:n], known[:n])

	case modem.EstimatorPayloadQPSK:
		if r.fc.Delimiter != modem.DelimiterSOF && r.fc.Delimiter != modem.DelimiterRSOF {
			return
		}
		if !allBlocksOK(decoded.BlockOK) {
			return
		}
		known, err := ReencodeKnownFreqSymbols(r.fc.Delimiter, decoded.Bytes, r.toneMask, r.broadcastMask, r.toneMap)
		if err != nil {
			return
		}
		received := RawPayloadSymbols(payloadSamples, r.fc)
		n := len(known)
		if len(received) < n {
			n = len(received)
		}
		if n == 0 {
			return
		}
		avgKnown := averageComplexSymbols(known[:n])
		avgReceived := averageComplexSymbols(received[:n])
		r.response = r.estimator.Refine(r.response, avgReceived, avgKnown)
	}
}

func allBlocksOK(blockOK []bool) bool {
	if len(blockOK) == 0 {
		return false
	}
	for _, ok := range blockOK {
		if !ok {
			return false
		}
	}
	return true
}

// averageComplexSymbols elementwise-averages a list of equal-shape
// per-carrier symbols into one, for estimator modes that need a single
// received/known vector but have several symbols' worth of evidence.
func averageComplexSymbols(symbols [][]complex128) []complex128 {
	if len(symbols) == 0 {
		return nil
	}
	n := len(symbols[0])
	out := make([]complex128, n)
	for _, sym := range symbols {
		for c := 0; c < n && c < len(sym); c++ {
			out[c] += sym[c]
		}
	}
	scale := complex(1/float64(len(symbols)), 0)
	for c := range out {
		out[c] *= scale
	}
	return out
}

// stepSenseSpace implements the SENSE_SPACE row: collects the
// inter-frame-space samples, re-estimates noise PSD from them, and
// emits PHY-RXSNR then PHY-RXEND.
func (r *Receiver) stepSenseSpace() ([]Message, bool) {
	need := modem.MinInterFrameSpace
	if len(r.pending) < need {
		return nil, false
	}
	ifs := r.pending[:need]
	r.pending = r.pending[need:]
	r.noisePSD = modem.EstimateNoisePSD(ifs)

	snr := make([]float64, 0, r.toneMask.Count())
	for c, active := range r.toneMask {
		if !active {
			continue
		}
		h := 0.0
		if c < len(r.response.Gains) {
			h = cabs2(r.response.Gains[c])
		}
		n0 := r.noisePSD[c]
		if n0 <= 0 {
			n0 = modem.MinEnergy
		}
		snr = append(snr, h/n0)
	}
	r.Stats.recordSNR(snr)
	r.resetState()
	return []Message{NewRxSNR(snr), NewRxEnd()}, true
}

// stepConsumeSpace implements the CONSUME_SPACE row: discards the
// inter-frame-space samples and emits PHY-RXEND.
func (r *Receiver) stepConsumeSpace() (Message, bool) {
	need := modem.MinInterFrameSpace
	if len(r.pending) < need {
		return Message{}, false
	}
	r.pending = r.pending[need:]
	r.resetState()
	return NewRxEnd(), true
}

func supportedDelimiter(d modem.DelimiterType) bool {
	switch d {
	case modem.DelimiterSOF, modem.DelimiterSACK, modem.DelimiterSound, modem.DelimiterRSOF:
		return true
	default:
		return false
	}
}

func cabs2(c complex128) float64 {
	re, im := real(c), imag(c)
	return re*re + im*im
}

// matchedFilterRealTaps derives real-valued correlation taps from the
// complex reference preamble's matched-filter window: the RX sample
// stream is real (§6), so SYNC correlates against the real part only,
// matching the real/complex I/O-edge convention fixed in §9.
func matchedFilterRealTaps() []float64 {
	taps := modem.MatchedFilterTaps()
	out := make([]float64, len(taps))
	for i, t := range taps {
		out[i] = real(t)
	}
	return out
}
