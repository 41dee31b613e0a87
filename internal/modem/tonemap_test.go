package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSelectToneMap_FlatChannel_Scenario4 reproduces §8 scenario 4: a flat
// channel (H=1 on every active carrier), uniform noise PSD N0=0.01, and
// target SER P_t=1e-2. Every active carrier should land on the same
// modulation (64-QAM at this SNR), and every masked-out carrier stays NULL.
func TestSelectToneMap_FlatChannel_Scenario4(t *testing.T) {
	mask := FullToneMask()
	mask[0] = false
	mask[1] = false

	response := make([]complex128, len(mask))
	n0 := make([]float64, len(mask))
	for i := range response {
		response[i] = complex(1, 0)
		n0[i] = 0.01
	}

	tm := SelectToneMap(response, n0, 1e-2, mask, nil)

	assert.Equal(t, ModNull, tm[0])
	assert.Equal(t, ModNull, tm[1])
	for c := 2; c < len(mask); c++ {
		assert.Equal(t, Mod64QAM, tm[c], "carrier %d", c)
	}
}

// TestSelectToneMap_Monotonicity confirms the property listed alongside
// §4.7's algorithm: tightening the target SER never raises the selected
// modulation order for a fixed channel/noise.
func TestSelectToneMap_Monotonicity(t *testing.T) {
	mask := FullToneMask()
	response := make([]complex128, len(mask))
	n0 := make([]float64, len(mask))
	for i := range response {
		response[i] = complex(1, 0)
		n0[i] = 0.01
	}

	loose := SelectToneMap(response, n0, 1e-1, mask, nil)
	tight := SelectToneMap(response, n0, 1e-4, mask, nil)

	for c := range mask {
		assert.LessOrEqual(t, tight[c].BitsPerSymbol(), loose[c].BitsPerSymbol(), "carrier %d", c)
	}
}

// TestSelectToneMap_WeakCarrierIsNull confirms a carrier whose SNR can't
// even satisfy BPSK's target SER is marked NULL rather than clamped to
// the weakest modulation.
func TestSelectToneMap_WeakCarrierIsNull(t *testing.T) {
	mask := FullToneMask()
	response := make([]complex128, len(mask))
	n0 := make([]float64, len(mask))
	for i := range response {
		response[i] = complex(1e-6, 0)
		n0[i] = 1.0
	}

	tm := SelectToneMap(response, n0, 1e-2, mask, nil)
	for c := range mask {
		assert.Equal(t, ModNull, tm[c], "carrier %d", c)
	}
}
