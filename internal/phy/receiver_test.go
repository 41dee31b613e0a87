package phy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ieee1901/plcphy/internal/modem"
)

func newTestService(t *testing.T) *PhyService {
	t.Helper()
	mask := modem.FullToneMask()
	svc, err := NewPhyService(mask, mask, mask, modem.EstimatorPreamble, nil, nil)
	assert.NoError(t, err)
	return svc
}

// TestPhyService_SOF_EndToEnd drives §4.10's full state machine
// (RESET->SEARCH->SYNC->COPY_PREAMBLE->COPY_FRAME_CONTROL->COPY_PAYLOAD->
// SENSE_SPACE->RESET) with a noiseless SOF PPDU, matching spec.md §8
// scenario 1: the decoded payload must reach PHY-RXSOF, followed by
// PHY-RXSNR and PHY-RXEND once the trailing inter-frame space is fed.
func TestPhyService_SOF_EndToEnd(t *testing.T) {
	svc := newTestService(t)

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i*17 + 3)
	}
	samples, err := svc.Encode(modem.DelimiterSOF, payload)
	assert.NoError(t, err)

	stream := realOf(samples)
	stream = append(stream, make([]float64, modem.MinInterFrameSpace)...)

	svc.Feed(stream)

	msg1 := <-svc.RX()
	assert.Equal(t, CmdRxSOF, msg1.Command)
	assert.Equal(t, payload, msg1.Bytes("payload"))

	msg2 := <-svc.RX()
	assert.Equal(t, CmdRxSNR, msg2.Command)

	msg3 := <-svc.RX()
	assert.Equal(t, CmdRxEnd, msg3.Command)

	select {
	case extra := <-svc.RX():
		t.Fatalf("unexpected extra message: %+v", extra)
	default:
	}

	stats := svc.Stats()
	assert.Equal(t, 1, stats.FramesAttempted)
	assert.Equal(t, 1, stats.FramesDecoded)
}

// TestPhyService_SACK_EndToEnd covers scenario 2: a SACK frame reaches
// PHY-RXSACK and then, since SACK transitions through CONSUME_SPACE
// rather than SENSE_SPACE, only PHY-RXEND follows (no PHY-RXSNR).
func TestPhyService_SACK_EndToEnd(t *testing.T) {
	svc := newTestService(t)

	payload := []byte{0x01, 0x02, 0x03}
	samples, err := svc.Encode(modem.DelimiterSACK, payload)
	assert.NoError(t, err)

	stream := realOf(samples)
	stream = append(stream, make([]float64, modem.MinInterFrameSpace)...)

	svc.Feed(stream)

	msg1 := <-svc.RX()
	assert.Equal(t, CmdRxSACK, msg1.Command)
	assert.Equal(t, payload, msg1.Bytes("sackd"))

	msg2 := <-svc.RX()
	assert.Equal(t, CmdRxEnd, msg2.Command)

	select {
	case extra := <-svc.RX():
		t.Fatalf("unexpected extra message: %+v", extra)
	default:
	}
}

// TestReceiver_SearchIgnoresLeadingNoise confirms white noise ahead of a
// real preamble produces no false PHY-RXSOF and does not prevent the
// receiver from locking onto the preamble that follows — the SEARCH
// plateau counter has no hysteresis, so a noise run that never satisfies
// SearchThreshold/MinEnergy for MinPlateau consecutive windows must leave
// the state machine able to resync.
func TestReceiver_SearchIgnoresLeadingNoise(t *testing.T) {
	svc := newTestService(t)

	payload := []byte{0xAA, 0xBB}
	samples, err := svc.Encode(modem.DelimiterSACK, payload)
	assert.NoError(t, err)

	noise := make([]float64, 4*modem.SyncpSize)
	for i := range noise {
		// A deterministic, non-periodic alternating pattern: adjacent
		// SyncpSize windows never correlate above SearchThreshold.
		if i%7 == 0 {
			noise[i] = 1
		} else if i%11 == 0 {
			noise[i] = -1
		}
	}

	stream := append(noise, realOf(samples)...)
	stream = append(stream, make([]float64, modem.MinInterFrameSpace)...)

	svc.Feed(stream)

	msg1 := <-svc.RX()
	assert.Equal(t, CmdRxSACK, msg1.Command)
	assert.Equal(t, payload, msg1.Bytes("sackd"))
}

// TestReceiver_FrameControlCorruption_NeverYieldsOriginalPayload corrupts
// the frame-control symbol of an otherwise-valid SOF PPDU. Per §4.11 a
// frame-control decode failure or unsupported delimiter resets silently
// (no message); garbage fields that happen to parse as a different,
// valid-looking frame-control vector can still produce a message, but it
// must never carry the original payload bytes — a corrupted frame
// control must never be mistaken for the frame that was actually sent.
func TestReceiver_FrameControlCorruption_NeverYieldsOriginalPayload(t *testing.T) {
	svc := newTestService(t)

	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(i)
	}
	samples, err := svc.Encode(modem.DelimiterSOF, payload)
	assert.NoError(t, err)

	stream := realOf(samples)
	fcStart := modem.PreambleSize
	fcEnd := fcStart + FrameControlSymbolLen
	for i := fcStart; i < fcEnd; i++ {
		stream[i] = -stream[i]
	}
	// However the garbled frame control plays out, the receiver will
	// eventually stall waiting for more payload samples if it decoded an
	// implausibly large NumSymbols; pad generously so Feed can't block
	// forever on a legitimately small garbage frame.
	stream = append(stream, make([]float64, 64*modem.MinInterFrameSpace)...)

	svc.Feed(stream)

	for {
		select {
		case msg := <-svc.RX():
			if msg.Command == CmdRxSOF || msg.Command == CmdRxSACK {
				assert.NotEqual(t, payload, msg.Bytes("payload"))
				assert.NotEqual(t, payload, msg.Bytes("sackd"))
			}
		default:
			return
		}
	}
}

// TestReceiver_EnableResetsFromHalt confirms Halt suspends state-machine
// progress (no message even given a complete, valid PPDU) and Enable
// resumes it from RESET.
func TestReceiver_EnableResetsFromHalt(t *testing.T) {
	svc := newTestService(t)

	payload := []byte{0x11, 0x22}
	samples, err := svc.Encode(modem.DelimiterSACK, payload)
	assert.NoError(t, err)
	stream := realOf(samples)
	stream = append(stream, make([]float64, modem.MinInterFrameSpace)...)

	svc.receiver.Halt()
	svc.Feed(stream)
	select {
	case msg := <-svc.RX():
		t.Fatalf("expected no message while halted, got %+v", msg)
	default:
	}

	svc.receiver.Enable()
	svc.Feed(stream)
	msg := <-svc.RX()
	assert.Equal(t, CmdRxSACK, msg.Command)
	assert.Equal(t, payload, msg.Bytes("sackd"))
}

// TestReceiver_RefineChannelEstimate_SoundMode confirms EstimatorSound
// actually drives EstimateFromSound: starting from a deliberately wrong
// (all-zero) prior response, processing a Sound MPDU over a unit channel
// must pull the response back to ~1+0i on every carrier, since Sound
// mode's whole point is estimating the response from the Sound frame
// itself rather than trusting the preamble estimate.
func TestReceiver_RefineChannelEstimate_SoundMode(t *testing.T) {
	mask := modem.FullToneMask()
	r := NewReceiver(mask, mask, nil, modem.EstimatorSound, nil)
	r.response = modem.ChannelResponse{Gains: make([]complex128, modem.NumberOfCarriers)}

	samples, fc, err := EncodePPDU(modem.DelimiterSound, nil, mask, mask, nil)
	assert.NoError(t, err)
	r.fc = fc
	_, _, payloadSamples := splitPPDU(realOf(samples))

	r.refineChannelEstimate(payloadSamples, DecodedPayload{})

	for c, active := range mask {
		if !active {
			continue
		}
		diff := r.response.Gains[c] - complex(1, 0)
		re, im := real(diff), imag(diff)
		if re*re+im*im > 1e-4 {
			t.Fatalf("carrier %d: got %v, want ~1+0i", c, r.response.Gains[c])
		}
	}
}

// TestReceiver_RefineChannelEstimate_PayloadQPSKMode confirms
// EstimatorPayloadQPSK actually drives Estimator.Refine: starting from a
// deliberately wrong (uniformly halved) prior response, decision-directed
// refinement against a successfully-decoded SOF frame's QPSK carriers
// must pull the response back to ~1+0i.
func TestReceiver_RefineChannelEstimate_PayloadQPSKMode(t *testing.T) {
	mask := modem.FullToneMask()
	r := NewReceiver(mask, mask, mask, modem.EstimatorPayloadQPSK, nil)
	r.response = unitResponse()

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	samples, fc, err := EncodePPDU(modem.DelimiterSOF, payload, mask, mask, nil)
	assert.NoError(t, err)
	r.fc = fc
	_, _, payloadSamples := splitPPDU(realOf(samples))

	decoded, err := DecodePPDU(payloadSamples, fc, r.response, noiselessN0(), mask, nil)
	assert.NoError(t, err)
	assert.Equal(t, payload, decoded.Bytes)

	wrong := modem.ChannelResponse{Gains: append([]complex128(nil), r.response.Gains...), SyncpSymbols: r.response.SyncpSymbols}
	for c := range wrong.Gains {
		wrong.Gains[c] = complex(0.5, 0)
	}
	r.response = wrong

	r.refineChannelEstimate(payloadSamples, decoded)

	for c, active := range mask {
		if !active {
			continue
		}
		diff := r.response.Gains[c] - complex(1, 0)
		re, im := real(diff), imag(diff)
		if re*re+im*im > 1e-3 {
			t.Fatalf("carrier %d: got %v, want ~1+0i after refine", c, r.response.Gains[c])
		}
	}
}
