package phy

import (
	"context"
	"fmt"
	"log"

	"github.com/ieee1901/plcphy/internal/modem"
)

// PhyService is the MAC-facing lifecycle of §3: constructed once with
// the three masks and a channel-estimation mode, after which the
// preamble, SYNCP reference, broadcast QPSK tone-info, and turbo
// interleaver tables are fixed. Tone-map, channel response, and noise
// PSD are the only per-frame mutable state: the TX tone-map lives on the
// PhyService, the channel response and noise PSD on its Receiver.
type PhyService struct {
	toneMask      modem.ToneMask
	broadcastMask modem.ToneMask
	syncToneMask  modem.ToneMask

	receiver *Receiver

	tx chan Message
	rx chan Message

	toneMap modem.ToneMap
	logger  *log.Logger
}

// NewPhyService constructs a PhyService. Plan construction for the two
// fixed FFT sizes (payload, SYNCP) is forced eagerly so any allocation
// failure surfaces here as a wrapped error rather than on the first
// encode/decode call (§7, "Plan-allocation failure... fatal at
// construction"), matching the teacher's fmt.Errorf wrapping
// convention.
func NewPhyService(toneMask, broadcastMask, syncToneMask modem.ToneMask, estimatorMode modem.EstimatorMode, qpskToneMask modem.ToneMask, logger *log.Logger) (*PhyService, error) {
	if err := prewarmFFTPlans(); err != nil {
		return nil, fmt.Errorf("phy: NewPhyService: %w", err)
	}

	s := &PhyService{
		toneMask:      toneMask,
		broadcastMask: broadcastMask,
		syncToneMask:  syncToneMask,
		receiver:      NewReceiver(toneMask, broadcastMask, qpskToneMask, estimatorMode, logger),
		tx:            make(chan Message, 16),
		rx:            make(chan Message, 16),
		toneMap:       modem.NewNullToneMap(modem.NumberOfCarriers),
		logger:        logger,
	}
	return s, nil
}

// prewarmFFTPlans forces the process-wide plan registry to build the
// two transform sizes this module ever uses, converting any panic from
// gonum's plan constructor into a plain error (§7).
func prewarmFFTPlans() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fft plan allocation failed: %v", p)
		}
	}()
	modem.FFT(make([]complex128, modem.PayloadFFTSize))
	modem.FFT(make([]complex128, modem.SyncpSize))
	return nil
}

func (s *PhyService) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// TX enqueues a MAC-originated message (normally a MAC-TXMSDU) for the
// transmit driver. It blocks the caller only while the 16-message TX
// buffer is full; Run's TX goroutine is the one that blocks on dequeue
// (§5, "coroutine-like blocking dequeue").
func (s *PhyService) TX(msg Message) {
	s.tx <- msg
}

// RX returns the channel MAC-directed events (PHY-RXSOF, PHY-RXSACK,
// PHY-RXSOUND, PHY-RXSNR, PHY-RXEND, PHY-CALCTONEMAP.response) are
// delivered on, in the order they occur relative to the sample stream
// (§5 ordering guarantees).
func (s *PhyService) RX() <-chan Message {
	return s.rx
}

// Stats returns a snapshot of the receiver's counters (§3).
func (s *PhyService) Stats() Stats {
	return s.receiver.Stats
}

// ToneMap returns the tone-map currently selected for Standard/Custom
// tone-mode encoding (ROBO modes ignore it and use their own fixed
// QPSK plan).
func (s *PhyService) ToneMap() modem.ToneMap {
	return s.toneMap
}

// Feed drives the receiver state machine with a chunk of the real
// sample stream (§6 RX input), pushing any resulting messages onto RX().
// A send to a full rx channel blocks; callers that can't block should
// size the channel or drain RX() promptly.
func (s *PhyService) Feed(samples []float64) {
	for _, msg := range s.receiver.Process(samples) {
		s.rx <- msg
	}
}

// Encode runs the TX path driver (ppdu_tx.go) directly, without going
// through the TX()/Run() message plumbing — useful for callers that
// already have a dequeued MAC-TXMSDU and want the resulting samples
// synchronously.
func (s *PhyService) Encode(delim modem.DelimiterType, payload []byte) ([]complex128, error) {
	samples, fc, err := EncodePPDU(delim, payload, s.toneMask, s.broadcastMask, s.toneMap)
	if err != nil {
		return nil, fmt.Errorf("phy: encode: %w", err)
	}
	s.logf("phy: encoded %s, %d symbols, %d PBs", fc.Delimiter, fc.NumSymbols, fc.NumPBs)
	return samples, nil
}

// CalcToneMap implements PHY-CALCTONEMAP.request/response (§6): selects
// a tone-map from the receiver's last channel response and noise PSD
// against targetPt, applies it for subsequent Standard/Custom-mode TX,
// and returns the byte-coded response payload.
func (s *PhyService) CalcToneMap(targetPt float64, forced modem.ToneMask) []byte {
	response := s.receiver.response
	n0 := s.receiver.noisePSD
	tm := modem.SelectToneMap(response.Gains, n0, targetPt, s.toneMask, forced)
	s.toneMap = tm
	encoded := make([]byte, len(tm))
	for i, m := range tm {
		encoded[i] = byte(m)
	}
	return encoded
}

// Run launches the blocking TX dequeue loop (§5, §9 "coroutine-like
// blocking dequeue"): it reads MAC-TXMSDU messages from TX(), encodes
// them, and calls emit with the resulting samples in strict generation
// order. It returns when ctx is cancelled, which is the teardown signal
// the dequeue is expected to be interruptible by; no partial sample is
// emitted after cancellation.
func (s *PhyService) Run(ctx context.Context, emit func([]complex128)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.tx:
			if msg.Command != CmdTxMsdu {
				if msg.Command == CmdCalcToneMapReq {
					targetPt := msg.Float64("target_pt", 1e-2)
					s.rx <- NewCalcToneMapResponse(s.CalcToneMap(targetPt, nil))
				}
				continue
			}
			fc := msg.Bytes("mpdu_fc")
			delim, err := fcDelimiterOnly(fc)
			if err != nil {
				s.logf("phy: malformed MAC-TXMSDU, ignoring: %v", err)
				continue
			}
			samples, err := s.Encode(delim, msg.Bytes("mpdu_payload"))
			if err != nil {
				s.logf("phy: %v", err)
				continue
			}
			emit(samples)
		}
	}
}

// fcDelimiterOnly decodes just the delimiter type out of a raw MAC-
// supplied frame-control byte vector, defending against a malformed
// message on the input port (§7, "silently ignored").
func fcDelimiterOnly(mpduFC []byte) (modem.DelimiterType, error) {
	if len(mpduFC) == 0 {
		return 0, fmt.Errorf("empty mpdu_fc")
	}
	return modem.DelimiterType(mpduFC[0]), nil
}
