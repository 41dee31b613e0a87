package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ieee1901/plcphy/internal/fec"
)

func TestFrameControlInfo_RoundTrip(t *testing.T) {
	cases := []FrameControlFields{
		{Delimiter: DelimiterSOF, NumSymbols: 12, NumPBs: 3, PBSize: fec.PB520, ToneMode: fec.ToneModeStandardROBO, Rate: fec.Rate1_2, PayloadBits: 4096},
		{Delimiter: DelimiterSACK, NumSymbols: 1, NumPBs: 1, PBSize: fec.PB16, ToneMode: fec.ToneModeMiniROBO, Rate: fec.Rate1_2, PayloadBits: 10},
		{Delimiter: DelimiterSound, NumSymbols: 4, NumPBs: 2, PBSize: fec.PB520, ToneMode: fec.ToneModeHighSpeedROBO, Rate: fec.Rate16_21, PayloadBits: 1000},
	}
	for _, want := range cases {
		info := EncodeFrameControlInfo(want)
		assert.Len(t, info, fec.FrameControlInfoBits)

		got, err := DecodeFrameControlInfo(info)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeFrameControlInfo_WrongLength(t *testing.T) {
	_, err := DecodeFrameControlInfo(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeFrameControlInfo_RejectsUnsupportedDelimiter(t *testing.T) {
	// 7 fits the 3-bit delimiter field but names no delimiter type.
	f := FrameControlFields{Delimiter: DelimiterType(7), PBSize: fec.PB16, ToneMode: fec.ToneModeStandard, Rate: fec.Rate1_2}
	info := EncodeFrameControlInfo(f)
	_, err := DecodeFrameControlInfo(info)
	assert.Error(t, err)
}

// TestFrameControlSymbol_Noiseless runs a full frame-control symbol
// through the RSC encode, QPSK-map-over-broadcast-mask, soft-demap, and
// RSC decode chain with no added noise, confirming the decoded fields
// match what was encoded.
func TestFrameControlSymbol_Noiseless(t *testing.T) {
	broadcast := FullToneMask()
	want := FrameControlFields{
		Delimiter:   DelimiterRSOF,
		NumSymbols:  7,
		NumPBs:      2,
		PBSize:      fec.PB136,
		ToneMode:    fec.ToneModeStandard,
		Rate:        fec.Rate16_18,
		PayloadBits: 2048,
	}

	spectrum := EncodeFrameControlSymbol(want, broadcast)

	n0 := make([]float64, NumberOfCarriers)
	for i := range n0 {
		n0[i] = 1e-6
	}

	got, err := DecodeFrameControlSymbol(spectrum, n0, broadcast)
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}
