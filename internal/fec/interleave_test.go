package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func randomBits(t *rapid.T, label string, n int) []byte {
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(rapid.IntRange(0, 1).Draw(t, label))
	}
	return bits
}

// TestChannelInterleave_RoundTrip covers every (pb_size, rate) lookup-table
// cell: ChannelDeinterleave must exactly undo ChannelInterleave regardless
// of which row/column of the offset/stepsize tables it hits.
func TestChannelInterleave_RoundTrip(t *testing.T) {
	for _, pb := range []PBSize{PB16, PB136, PB520} {
		for _, rate := range []CodeRate{Rate1_2, Rate16_21, Rate16_18} {
			pb, rate := pb, rate
			t.Run(pb.String()+"/"+rate.String(), func(t *testing.T) {
				n := pb.NBits()
				nPar1, nPar2 := rate.parityKeep()
				parLen := (n / puncturePeriod) * (nPar1 + nPar2)

				sys := make([]byte, n)
				for i := range sys {
					sys[i] = byte(i % 2)
				}
				par := make([]byte, parLen)
				for i := range par {
					par[i] = byte((i + 1) % 2)
				}

				pbIdx := PBIndex(pb)
				rateIdx := RateIndex(rate)

				interleaved := ChannelInterleave(sys, par, pbIdx, rateIdx)
				assert.Equal(t, len(sys)+len(par), len(interleaved))

				gotSys, gotPar := ChannelDeinterleave(interleaved, len(sys), len(par), pbIdx, rateIdx)
				assert.Equal(t, sys, gotSys)
				assert.Equal(t, par, gotPar)
			})
		}
	}
}

// TestChannelInterleave_SoftRoundTrip exercises the soft-LLR path that the
// receiver actually uses: a hard-interleaved stream, read back as signed
// LLRs (0 -> +1, 1 -> -1), must deinterleave to the same per-position
// values the hard path would at those bit positions.
func TestChannelInterleave_SoftRoundTrip(t *testing.T) {
	pb := PB136
	rate := Rate16_21
	n := pb.NBits()
	nPar1, nPar2 := rate.parityKeep()
	parLen := (n / puncturePeriod) * (nPar1 + nPar2)

	sys := make([]byte, n)
	par := make([]byte, parLen)
	for i := range sys {
		sys[i] = byte((i * 3) % 2)
	}
	for i := range par {
		par[i] = byte((i * 5) % 2)
	}

	pbIdx := PBIndex(pb)
	rateIdx := RateIndex(rate)

	interleaved := ChannelInterleave(sys, par, pbIdx, rateIdx)

	soft := make([]float64, len(interleaved))
	for i, b := range interleaved {
		if b == 0 {
			soft[i] = 1
		} else {
			soft[i] = -1
		}
	}

	sysLLR, parLLR := ChannelDeinterleaveSoft(soft, len(sys), len(par), pbIdx, rateIdx)
	for i, b := range sys {
		want := 1.0
		if b == 1 {
			want = -1
		}
		assert.Equal(t, want, sysLLR[i])
	}
	for i, b := range par {
		want := 1.0
		if b == 1 {
			want = -1
		}
		assert.Equal(t, want, parLLR[i])
	}
}

func TestCalcRoboParameters(t *testing.T) {
	p := CalcRoboParameters(ToneModeStandardROBO, 100, 256)
	assert.Equal(t, 4, p.Copies)
	assert.Greater(t, p.BitsPerSegment, 0)

	p2 := CalcRoboParameters(ToneModeStandard, 100, 256)
	assert.Equal(t, 1, p2.Copies)
}

// TestRoboInterleave_RoundTrip checks the noiseless case: with all copies
// intact, RoboCombine's majority vote recovers the original bitstream
// exactly for every ROBO tone mode.
func TestRoboInterleave_RoundTrip(t *testing.T) {
	modes := []ToneMode{ToneModeMiniROBO, ToneModeStandardROBO, ToneModeHighSpeedROBO}
	rapid.Check(t, func(t *rapid.T) {
		mode := modes[rapid.IntRange(0, len(modes)-1).Draw(t, "mode")]
		n := rapid.IntRange(1, 256).Draw(t, "n")
		nCarriers := rapid.IntRange(8, 256).Draw(t, "carriers")
		bits := randomBits(t, "bits", n)

		copied := RoboInterleave(bits, mode, nCarriers)
		assert.Equal(t, n*mode.RoboCopies(), len(copied))

		combined := RoboCombine(copied, mode, nCarriers)
		assert.Equal(t, bits, combined)
	})
}

func TestRoboInterleave_NonRoboIsIdentity(t *testing.T) {
	bits := []byte{1, 0, 1, 1, 0}
	assert.Equal(t, bits, RoboInterleave(bits, ToneModeStandard, 256))
}

func TestPBIndex_RateIndex_Panics(t *testing.T) {
	assert.Panics(t, func() { PBIndex(PBSize(7)) })
	assert.Panics(t, func() { RateIndex(CodeRate(7)) })
}
