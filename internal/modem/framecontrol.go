package modem

import (
	"fmt"

	"github.com/ieee1901/plcphy/internal/fec"
)

// DelimiterType identifies the frame type carried in frame control, per
// the RX params table of §3.
type DelimiterType int

const (
	DelimiterBeacon DelimiterType = iota
	DelimiterSOF
	DelimiterSACK
	DelimiterRTSCTS
	DelimiterSound
	DelimiterRSOF
)

func (d DelimiterType) String() string {
	switch d {
	case DelimiterBeacon:
		return "Beacon"
	case DelimiterSOF:
		return "SOF"
	case DelimiterSACK:
		return "SACK"
	case DelimiterRTSCTS:
		return "RTS-CTS"
	case DelimiterSound:
		return "Sound"
	case DelimiterRSOF:
		return "RSOF"
	default:
		return "Unknown"
	}
}

// pbSizeCode / code-to-size: frame control carries PB size as a 2-bit
// code rather than the byte count directly.
var pbSizeByCode = [4]fec.PBSize{fec.PB16, fec.PB136, fec.PB520, fec.PB520}

func pbSizeCode(p fec.PBSize) int {
	switch p {
	case fec.PB16:
		return 0
	case fec.PB136:
		return 1
	case fec.PB520:
		return 2
	default:
		panic(fmt.Sprintf("modem: unknown pb size %d", p))
	}
}

var rateByCode = [4]fec.CodeRate{fec.Rate1_2, fec.Rate16_21, fec.Rate16_18, fec.Rate1_2}

func rateCode(r fec.CodeRate) int {
	switch r {
	case fec.Rate1_2:
		return 0
	case fec.Rate16_21:
		return 1
	case fec.Rate16_18:
		return 2
	default:
		panic(fmt.Sprintf("modem: unknown code rate %d", r))
	}
}

// FrameControlFields is the decoded content of a frame-control symbol:
// the union of RX params (§3) the receiver needs to drive the rest of
// the PPDU decode.
type FrameControlFields struct {
	Delimiter  DelimiterType
	NumSymbols int
	NumPBs     int
	PBSize     fec.PBSize
	ToneMode   fec.ToneMode
	Rate       fec.CodeRate
	// PayloadBits is the exact (unpadded) bit length of the scrambled
	// payload+CRC-24 stream before PB-boundary zero-padding, letting the
	// receiver strip the pad before the CRC check. Real IEEE 1901 frame
	// control carries an analogous explicit MPDU length field.
	PayloadBits int
}

// Bit widths of the 64-bit frame-control information vector.
const (
	fcDelimiterBits  = 3
	fcNumSymBits     = 12
	fcNumPBsBits     = 8
	fcPBSizeBits     = 2
	fcToneModeBits   = 3
	fcRateBits       = 2
	fcPayloadBits    = 24
	// remaining bits up to fec.FrameControlInfoBits are reserved/padding.
)

func putBits(dst []byte, pos int, value, width int) int {
	for i := width - 1; i >= 0; i-- {
		dst[pos] = byte((value >> uint(i)) & 1)
		pos++
	}
	return pos
}

func getBits(src []byte, pos, width int) (int, int) {
	v := 0
	for i := 0; i < width; i++ {
		v = (v << 1) | int(src[pos])
		pos++
	}
	return v, pos
}

// EncodeFrameControlInfo packs FrameControlFields into the 64-bit
// information vector FCEncode expects.
func EncodeFrameControlInfo(f FrameControlFields) []byte {
	info := make([]byte, fec.FrameControlInfoBits)
	pos := 0
	pos = putBits(info, pos, int(f.Delimiter), fcDelimiterBits)
	pos = putBits(info, pos, f.NumSymbols, fcNumSymBits)
	pos = putBits(info, pos, f.NumPBs, fcNumPBsBits)
	pos = putBits(info, pos, pbSizeCode(f.PBSize), fcPBSizeBits)
	pos = putBits(info, pos, int(f.ToneMode), fcToneModeBits)
	pos = putBits(info, pos, rateCode(f.Rate), fcRateBits)
	pos = putBits(info, pos, f.PayloadBits, fcPayloadBits)
	_ = pos
	return info
}

// DecodeFrameControlInfo is the inverse of EncodeFrameControlInfo.
func DecodeFrameControlInfo(info []byte) (FrameControlFields, error) {
	if len(info) != fec.FrameControlInfoBits {
		return FrameControlFields{}, fmt.Errorf("modem: frame control info length %d != %d", len(info), fec.FrameControlInfoBits)
	}
	pos := 0
	var delim, numSym, numPBs, pbCode, toneCode, rCode, payloadBits int
	delim, pos = getBits(info, pos, fcDelimiterBits)
	numSym, pos = getBits(info, pos, fcNumSymBits)
	numPBs, pos = getBits(info, pos, fcNumPBsBits)
	pbCode, pos = getBits(info, pos, fcPBSizeBits)
	toneCode, pos = getBits(info, pos, fcToneModeBits)
	rCode, pos = getBits(info, pos, fcRateBits)
	payloadBits, pos = getBits(info, pos, fcPayloadBits)
	_ = pos
	if delim > int(DelimiterRSOF) {
		return FrameControlFields{}, fmt.Errorf("modem: unsupported delimiter type %d", delim)
	}
	if toneCode > int(fec.ToneModeCustom) {
		return FrameControlFields{}, fmt.Errorf("modem: unsupported tone mode %d", toneCode)
	}
	return FrameControlFields{
		Delimiter:  DelimiterType(delim),
		NumSymbols: numSym,
		NumPBs:     numPBs,
		PBSize:      pbSizeByCode[pbCode],
		ToneMode:    fec.ToneMode(toneCode),
		Rate:        rateByCode[rCode],
		PayloadBits: payloadBits,
	}, nil
}

// EncodeFrameControlSymbol turns fields into 128 coded bits (FCEncode)
// mapped onto QPSK over the broadcast tone mask, ready for IFFT with
// GuardIntervalFC. Returns the complex frequency-domain vector (length
// NumberOfCarriers, NULL on non-broadcast carriers).
func EncodeFrameControlSymbol(f FrameControlFields, broadcast ToneMask) []complex128 {
	info := EncodeFrameControlInfo(f)
	coded := fec.FCEncode(info)
	qpsk := NewConstellation(ModQPSK)

	spectrum := make([]complex128, NumberOfCarriers)
	bitPos := 0
	for c, active := range broadcast {
		if !active {
			continue
		}
		if bitPos+2 <= len(coded) {
			spectrum[c] = qpsk.Map(coded[bitPos : bitPos+2])
			bitPos += 2
		}
	}
	return spectrum
}

// DecodeFrameControlSymbol reverses EncodeFrameControlSymbol given the
// equalized received spectrum and a per-carrier noise estimate for soft
// demapping.
func DecodeFrameControlSymbol(spectrum []complex128, n0 []float64, broadcast ToneMask) (FrameControlFields, error) {
	qpsk := NewConstellation(ModQPSK)
	soft := make([]float64, 0, fec.FrameControlCodedBits)
	for c, active := range broadcast {
		if !active || len(soft) >= fec.FrameControlCodedBits {
			continue
		}
		noise := 1e-6
		if c < len(n0) && n0[c] > 0 {
			noise = n0[c]
		}
		soft = append(soft, qpsk.DemapSoft(spectrum[c], noise)...)
	}
	if len(soft) < fec.FrameControlCodedBits {
		return FrameControlFields{}, fmt.Errorf("modem: insufficient broadcast carriers for frame control")
	}
	info := fec.FCDecode(soft[:fec.FrameControlCodedBits])
	return DecodeFrameControlInfo(info)
}
