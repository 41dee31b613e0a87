package phy

import (
	"fmt"

	"github.com/ieee1901/plcphy/internal/fec"
	"github.com/ieee1901/plcphy/internal/modem"
)

// soundReferencePayload is the fixed "known pseudo-random payload" §4.7
// Sound mode relies on: both ends agree on its content ahead of time, so
// a receiver in EstimatorSound mode can reconstruct exactly what a Sound
// MPDU transmitted and use the discrepancy to estimate the channel
// response, rather than decoding arbitrary MAC data. Generated once from
// a fixed-seed LFSR, sized to fill the data part (all but the CRC-24) of
// the largest PB a Sound frame carries.
var soundReferencePayload = generateSoundReferencePayload((fec.PB520.NBits() - fec.CRCBits) / 8)

func generateSoundReferencePayload(nBytes int) []byte {
	out := make([]byte, nBytes)
	state := uint16(0xACE1)
	for i := range out {
		var b byte
		for bit := 0; bit < 8; bit++ {
			fb := byte((state ^ (state >> 2) ^ (state >> 3) ^ (state >> 5)) & 1)
			state = (state >> 1) | (uint16(fb) << 15)
			b = (b << 1) | fb
		}
		out[i] = b
	}
	return out
}

// EncodePPDU implements the PPDU encoder of §4.8: it scrambles,
// turbo-encodes, channel-interleaves and (for ROBO tone-modes) applies
// the copier to payload, maps it onto OFDM symbols, then prepends the
// frame-control symbol and the preamble.
//
// toneMap is the currently-selected tone-map (from a prior
// PHY-CALCTONEMAP exchange), used only for the Standard/Custom tone
// modes; ROBO modes carry their own fixed QPSK tone-map over
// broadcastMask and ignore it.
//
// For DelimiterSound, payload is ignored and replaced with
// soundReferencePayload: a Sound MPDU's content is a fixed known
// pattern agreed by both ends, not MAC-supplied data (§4.7).
func EncodePPDU(delim modem.DelimiterType, payload []byte, toneMask, broadcastMask modem.ToneMask, toneMap modem.ToneMap) ([]complex128, modem.FrameControlFields, error) {
	if delim == modem.DelimiterSound {
		payload = soundReferencePayload
	}

	freqSymbols, fcFields, err := encodeFreqSymbols(delim, payload, toneMask, broadcastMask, toneMap)
	if err != nil {
		return nil, modem.FrameControlFields{}, err
	}

	symbols := make([][]float64, len(freqSymbols))
	for i, freq := range freqSymbols {
		symbol := modem.IFFTSymbol(freq, modem.GuardIntervalPayload)
		symbols[i] = modem.AppendCyclicPostfix(symbol, modem.GuardIntervalPayload, modem.RolloffInterval)
	}
	payloadSamples := modem.ApplyRolloff(symbols, modem.RolloffInterval)

	fcFreq := modem.EncodeFrameControlSymbol(fcFields, broadcastMask)
	fcSamples := modem.IFFTSymbol(fcFreq, modem.GuardIntervalFC)

	out := make([]complex128, 0, modem.PreambleSize+len(fcSamples)+len(payloadSamples))
	out = append(out, modem.ReferencePreamble()...)
	out = append(out, realToComplex(fcSamples)...)
	out = append(out, realToComplex(payloadSamples)...)
	return out, fcFields, nil
}

// KnownSoundFreqSymbols returns the frequency-domain symbols a Sound
// MPDU transmits for (toneMask, broadcastMask): the deterministic
// result of running soundReferencePayload through the same encode path
// EncodePPDU uses for DelimiterSound. A receiver in EstimatorSound mode
// compares this against what it actually received to estimate the
// channel (§4.7).
func KnownSoundFreqSymbols(toneMask, broadcastMask modem.ToneMask) ([][]complex128, modem.FrameControlFields) {
	symbols, fc, err := encodeFreqSymbols(modem.DelimiterSound, soundReferencePayload, toneMask, broadcastMask, nil)
	if err != nil {
		return nil, modem.FrameControlFields{}
	}
	return symbols, fc
}

// ReencodeKnownFreqSymbols recomputes the frequency-domain symbols a
// frame of delim carrying decodedPayload would have transmitted. A
// receiver in EstimatorPayloadQPSK mode calls this after a successful
// (CRC-OK) decode to recover, by decision-direction, the exact
// transmitted signal — the encode path is a pure function of
// (delim, payload, masks, toneMap), so re-running it on already-decoded
// bytes reproduces the original symbols bit-for-bit.
func ReencodeKnownFreqSymbols(delim modem.DelimiterType, decodedPayload []byte, toneMask, broadcastMask modem.ToneMask, toneMap modem.ToneMap) ([][]complex128, error) {
	symbols, _, err := encodeFreqSymbols(delim, decodedPayload, toneMask, broadcastMask, toneMap)
	return symbols, err
}

// encodeFreqSymbols runs §4.8 steps 1-3 up to (but not including) the
// IFFT: picks the delimiter-driven TX params, scrambles/turbo-encodes/
// interleaves/(ROBO-)copies the payload, and QAM-maps it onto per-symbol
// frequency-domain carrier vectors. EncodePPDU IFFTs the result into
// samples; the estimator wiring (KnownSoundFreqSymbols,
// ReencodeKnownFreqSymbols) calls it directly to learn what would have
// been transmitted without ever producing samples.
func encodeFreqSymbols(delim modem.DelimiterType, payload []byte, toneMask, broadcastMask modem.ToneMask, toneMap modem.ToneMap) ([][]complex128, modem.FrameControlFields, error) {
	txParams := defaultTxParams(delim)
	rate := codeRateFor(txParams.ToneMode)

	payloadSymbolMap := payloadToneMap(txParams.ToneMode, broadcastMask, toneMap)
	capacity := modem.ToneInfo{ToneMap: payloadSymbolMap}.Capacity()
	if capacity == 0 {
		return nil, modem.FrameControlFields{}, fmt.Errorf("phy: tone-map carries zero capacity")
	}

	// The ROBO copier step is derived from the broadcast carrier count, not
	// the full regulatory tone mask: it must match DecodePPDU's
	// softRoboCombine, which counts broadcastMask on the receive side.
	coded, payloadBitLen, numPBs, err := encodePayloadBits(payload, txParams, rate, broadcastMask.Count())
	if err != nil {
		return nil, modem.FrameControlFields{}, err
	}

	numSymbols := (len(coded) + capacity - 1) / capacity
	if numSymbols == 0 {
		numSymbols = 1
	}
	if rem := numSymbols*capacity - len(coded); rem > 0 {
		coded = append(coded, make([]byte, rem)...)
	}

	symbols := make([][]complex128, numSymbols)
	for i := 0; i < numSymbols; i++ {
		bits := coded[i*capacity : (i+1)*capacity]
		symbols[i] = modem.ModulateSymbol(payloadSymbolMap, bits)
	}

	fcFields := modem.FrameControlFields{
		Delimiter:   delim,
		NumSymbols:  numSymbols,
		NumPBs:      numPBs,
		PBSize:      txParams.PBSize,
		ToneMode:    txParams.ToneMode,
		Rate:        rate,
		PayloadBits: payloadBitLen,
	}
	return symbols, fcFields, nil
}

// payloadToneMap picks the tone-map ROBO modes fix internally, or falls
// back to the caller-supplied (channel-estimate-driven) tone-map for the
// Standard/Custom modes.
func payloadToneMap(mode fec.ToneMode, broadcastMask modem.ToneMask, toneMap modem.ToneMap) modem.ToneMap {
	switch mode {
	case fec.ToneModeMiniROBO, fec.ToneModeStandardROBO, fec.ToneModeHighSpeedROBO:
		tm := modem.NewNullToneMap(len(broadcastMask))
		for c, active := range broadcastMask {
			if active {
				tm[c] = modem.ModQPSK
			}
		}
		return tm
	default:
		return toneMap
	}
}

// encodePayloadBits runs §4.8 step 2: split the raw payload into
// PB-sized data chunks, attach a CRC-24 to each chunk individually
// (§4.11 — CRC is checked per physical block, not once over the whole
// payload), scramble, turbo encode, channel-interleave, and (for ROBO
// tone-modes) apply the copier, returning the concatenated coded
// bitstream, the pre-padding raw payload bit length (for
// fc.PayloadBits), and the PB count used (for fc.NumPBs).
func encodePayloadBits(payload []byte, txParams TxParams, rate fec.CodeRate, nCarriers int) ([]byte, int, int, error) {
	if len(payload) == 0 {
		return nil, 0, 0, nil
	}
	raw := fec.BytesToBitsMSB(payload)
	payloadBitLen := len(raw)

	infoBits := txParams.PBSize.NBits()
	dataBitsPerPB := infoBits - fec.CRCBits
	if dataBitsPerPB <= 0 {
		return nil, 0, 0, fmt.Errorf("phy: pb size %d too small to carry a CRC-24", txParams.PBSize)
	}

	numPBs := (len(raw) + dataBitsPerPB - 1) / dataBitsPerPB
	if numPBs == 0 {
		numPBs = 1
	}
	if rem := numPBs*dataBitsPerPB - len(raw); rem > 0 {
		raw = append(raw, make([]byte, rem)...)
	}

	pbIdx := fec.PBIndex(txParams.PBSize)
	rateIdx := fec.RateIndex(rate)

	var out []byte
	for i := 0; i < numPBs; i++ {
		chunk := raw[i*dataBitsPerPB : (i+1)*dataBitsPerPB]
		block := append(append([]byte(nil), chunk...), fec.CRC24Bits(chunk)...)
		scrambled := fec.Scramble(block)
		sys, par := fec.TurboEncodeSplit(scrambled, txParams.PBSize, rate)
		interleaved := fec.ChannelInterleave(sys, par, pbIdx, rateIdx)
		if robo(txParams.ToneMode) {
			interleaved = fec.RoboInterleave(interleaved, txParams.ToneMode, nCarriers)
		}
		out = append(out, interleaved...)
	}
	return out, payloadBitLen, numPBs, nil
}

func robo(mode fec.ToneMode) bool {
	switch mode {
	case fec.ToneModeMiniROBO, fec.ToneModeStandardROBO, fec.ToneModeHighSpeedROBO:
		return true
	default:
		return false
	}
}

func realToComplex(x []float64) []complex128 {
	out := make([]complex128, len(x))
	for i, v := range x {
		out[i] = complex(v, 0)
	}
	return out
}
