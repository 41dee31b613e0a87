package phy

import (
	"fmt"

	"github.com/ieee1901/plcphy/internal/fec"
	"github.com/ieee1901/plcphy/internal/modem"
)

// FrameControlSymbolLen is the number of real samples one frame-control
// symbol occupies: guard interval plus the payload FFT body.
const FrameControlSymbolLen = modem.GuardIntervalFC + modem.PayloadFFTSize

// PayloadSymbolLen is the number of real samples one payload OFDM
// symbol's own guard-interval-plus-body occupies (excluding the
// AppendCyclicPostfix tail EncodePPDU adds for rolloff windowing).
const PayloadSymbolLen = modem.GuardIntervalPayload + modem.PayloadFFTSize

// DecodeFrameControl implements §4.9's frame-control half: FFTs one FC
// symbol, equalizes against response, and soft-demaps/decodes it. A
// parse or unsupported-delimiter error is the "frame-control parse
// error" / "unsupported delimiter type" of §7 — recoverable by the
// caller (RESET, no message).
func DecodeFrameControl(samples []float64, response modem.ChannelResponse, n0 []float64, broadcastMask modem.ToneMask) (modem.FrameControlFields, error) {
	if len(samples) < FrameControlSymbolLen {
		return modem.FrameControlFields{}, fmt.Errorf("phy: need %d samples for frame control, got %d", FrameControlSymbolLen, len(samples))
	}
	carriers := modem.FFTSymbol(samples[:FrameControlSymbolLen], modem.GuardIntervalFC)
	equalized := modem.Equalize(carriers, response)
	return modem.DecodeFrameControlSymbol(equalized, n0, broadcastMask)
}

// DecodedPayload is the result of DecodePPDU: MAC-ready bytes plus, per
// PB, whether its CRC-24 check passed. Per §4.11, a CRC failure still
// yields a decoded payload; it is merely recorded in stats.
type DecodedPayload struct {
	Bytes   []byte
	BlockOK []bool
}

// PayloadSamplesLen returns the number of real samples DecodePPDU's
// sample stream must contain, given fc. EncodePPDU appends a
// RolloffInterval-sample cyclic postfix to every symbol and
// ApplyRolloff's overlap-add consumes exactly that much at each of the
// NumSymbols-1 internal boundaries; what's left is one
// RolloffInterval-sample postfix trailing the final symbol, which
// DecodePPDU never needs to read but the stream must still contain.
func PayloadSamplesLen(fc modem.FrameControlFields) int {
	if fc.NumSymbols == 0 {
		return 0
	}
	return fc.NumSymbols*PayloadSymbolLen + modem.RolloffInterval
}

// RawPayloadSymbols FFTs each payload OFDM symbol window without
// equalizing against any channel estimate, for callers that need the
// received spectrum directly rather than demapped bits — the Sound and
// payload-QPSK estimator modes (§4.7).
func RawPayloadSymbols(samples []float64, fc modem.FrameControlFields) [][]complex128 {
	out := make([][]complex128, 0, fc.NumSymbols)
	for i := 0; i < fc.NumSymbols; i++ {
		start := i * PayloadSymbolLen
		if start+PayloadSymbolLen > len(samples) {
			break
		}
		out = append(out, modem.FFTSymbol(samples[start:start+PayloadSymbolLen], modem.GuardIntervalPayload))
	}
	return out
}

// DecodePPDU implements §4.9's payload half: FFT each payload symbol,
// equalize, soft-demap, deinterleave (undoing the ROBO copier first when
// applicable), turbo-decode each PB, descramble, and verify CRC-24 per
// block.
func DecodePPDU(samples []float64, fc modem.FrameControlFields, response modem.ChannelResponse, n0 []float64, broadcastMask modem.ToneMask, toneMap modem.ToneMap) (DecodedPayload, error) {
	need := PayloadSamplesLen(fc)
	if len(samples) < need {
		return DecodedPayload{}, fmt.Errorf("phy: need %d payload samples, got %d", need, len(samples))
	}

	symbolMap := payloadToneMap(fc.ToneMode, broadcastMask, toneMap)
	capacity := modem.ToneInfo{ToneMap: symbolMap}.Capacity()

	soft := make([]float64, 0, capacity*fc.NumSymbols)
	for i := 0; i < fc.NumSymbols; i++ {
		start := i * PayloadSymbolLen
		carriers := modem.FFTSymbol(samples[start:start+PayloadSymbolLen], modem.GuardIntervalPayload)
		equalized := modem.Equalize(carriers, response)
		soft = append(soft, modem.DemapSoftSymbol(symbolMap, equalized, n0)...)
	}

	infoBits := fc.PBSize.NBits()
	dataBitsPerPB := infoBits - fec.CRCBits
	codedLen := fec.CalcEncodedBlockSize(fc.Rate, fc.PBSize)
	pbIdx := fec.PBIndex(fc.PBSize)
	rateIdx := fec.RateIndex(fc.Rate)
	nCarriers := 0
	for _, active := range broadcastMask {
		if active {
			nCarriers++
		}
	}

	numPBs := fc.NumPBs
	if numPBs == 0 {
		numPBs = len(soft) / codedLen
	}

	var allBits []byte
	blockOK := make([]bool, 0, numPBs)
	for i := 0; i < numPBs; i++ {
		var blockSoft []float64
		if robo(fc.ToneMode) {
			roboLen := codedLen * fc.ToneMode.RoboCopies()
			start := i * roboLen
			if start+roboLen > len(soft) {
				break
			}
			blockSoft = softRoboCombine(soft[start:start+roboLen], fc.ToneMode, nCarriers)
		} else {
			start := i * codedLen
			if start+codedLen > len(soft) {
				break
			}
			blockSoft = soft[start : start+codedLen]
		}

		sysLLR, parLLR := fec.ChannelDeinterleaveSoft(blockSoft, infoBits, codedLen-infoBits, pbIdx, rateIdx)
		merged := fec.MergeSysParSoft(sysLLR, parLLR, fc.Rate)
		coded := fec.TurboDecode(merged, fc.PBSize, fc.Rate)
		block := fec.Scramble(coded)

		blockOK = append(blockOK, fec.CRC24Check(block))
		allBits = append(allBits, block[:dataBitsPerPB]...)
	}

	// fc.PayloadBits is the exact pre-padding raw payload bit length
	// (§4.8); the per-PB zero padding in the last block's data chunk sits
	// after it and must not leak into the MAC-facing bytes.
	payloadBits := allBits
	if fc.PayloadBits > 0 && fc.PayloadBits <= len(payloadBits) {
		payloadBits = payloadBits[:fc.PayloadBits]
	}

	return DecodedPayload{
		Bytes:   fec.BitsToBytesMSB(payloadBits),
		BlockOK: blockOK,
	}, nil
}

func softRoboCombine(soft []float64, mode fec.ToneMode, nCarriers int) []float64 {
	copies := mode.RoboCopies()
	if copies == 1 {
		return soft
	}
	segLen := len(soft) / copies
	out := make([]float64, segLen)
	step := nCarriers / copies
	if step == 0 {
		step = 1
	}
	for k := 0; k < copies; k++ {
		seg := soft[k*segLen : (k+1)*segLen]
		realigned := make([]float64, segLen)
		offset := k * step
		for i := range seg {
			realigned[(i+offset)%segLen] = seg[i]
		}
		for i := range out {
			out[i] += realigned[i]
		}
	}
	return out
}
