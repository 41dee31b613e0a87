// Package phy drives the PPDU encode/decode paths and the receiver
// synchronization/framing state machine on top of internal/fec and
// internal/modem: the MAC-facing half of the IEEE 1901 PHY (§2, rows
// "PPDU encoder", "PPDU decoder", "Receiver state machine",
// "PhyService").
package phy

import (
	"github.com/ieee1901/plcphy/internal/fec"
	"github.com/ieee1901/plcphy/internal/modem"
)

// RxParams is the frame-control content parsed on receive (§3): it is
// exactly modem.FrameControlFields, named per the spec's vocabulary.
type RxParams = modem.FrameControlFields

// TxParams is chosen before encoding (§3): {tone-mode, PB size}.
type TxParams struct {
	ToneMode fec.ToneMode
	PBSize   fec.PBSize
}

// defaultTxParams maps a delimiter type to the tone-mode/PB-size plan
// EncodePPDU uses. No delimiter maps to the Standard or Custom
// tone-mode, so a tone-map applied by PHY-CALCTONEMAP does not change
// this plan. SACK frames are tiny and robustness-first
// (Mini-ROBO); Sound frames must survive on an as-yet-uncharacterized
// channel (High-Speed-ROBO); SOF/RSOF default to the full Standard-ROBO
// plan at the largest PB size.
func defaultTxParams(delim modem.DelimiterType) TxParams {
	switch delim {
	case modem.DelimiterSACK:
		return TxParams{ToneMode: fec.ToneModeMiniROBO, PBSize: fec.PB16}
	case modem.DelimiterSound:
		return TxParams{ToneMode: fec.ToneModeHighSpeedROBO, PBSize: fec.PB520}
	case modem.DelimiterBeacon:
		return TxParams{ToneMode: fec.ToneModeStandardROBO, PBSize: fec.PB16}
	default:
		return TxParams{ToneMode: fec.ToneModeStandardROBO, PBSize: fec.PB520}
	}
}

// codeRateFor maps a tone-mode to the code rate its fixed tone-info
// implies, per §3 ("ROBO modes imply fixed tone-info").
func codeRateFor(mode fec.ToneMode) fec.CodeRate {
	switch mode {
	case fec.ToneModeMiniROBO, fec.ToneModeStandardROBO:
		return fec.Rate1_2
	case fec.ToneModeHighSpeedROBO:
		return fec.Rate16_21
	default:
		return fec.Rate16_18
	}
}
