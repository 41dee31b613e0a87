package modem

// Frozen IEEE 1901-style constants shared by the OFDM engine, the
// preamble/frame-control builder, and the channel estimator. Internally
// consistent stand-ins for the real IEEE 1901 tables; no external
// conformance is claimed (see DESIGN.md).
const (
	// NumberOfCarriers is the carrier count N referenced throughout §3/§4.
	NumberOfCarriers = 1536

	// PayloadFFTSize is the real-valued payload FFT length, 2*N.
	PayloadFFTSize = 2 * NumberOfCarriers

	// SyncpSize is the length (in samples) of one SYNCP symbol.
	SyncpSize = 192

	// PreambleSize is 10 SYNCP symbols, per §4.6.
	PreambleSize = 10 * SyncpSize

	// FrameControlNBits is the number of encoded bits in the FC symbol.
	FrameControlNBits = 128

	// RolloffInterval is the raised-cosine window length (samples) applied
	// at OFDM symbol boundaries.
	RolloffInterval = 8

	// GuardIntervalFC is the cyclic-prefix length used by the FC symbol.
	GuardIntervalFC = 192

	// GuardIntervalPayload is the cyclic-prefix length used by payload
	// OFDM symbols (shorter than the FC guard interval in this profile).
	GuardIntervalPayload = 96

	// SampleRate is the modem's fixed sample rate.
	SampleRate = 75_000_000

	// MinInterFrameSpace is the minimum number of samples of silence the
	// receiver expects between the end of one PPDU and the next.
	MinInterFrameSpace = 2 * SyncpSize
)

// Receiver synchronization tuning constants, per §6.
const (
	SearchThreshold = 0.9
	MinEnergy       = 1e-3
	MinPlateau      = 5.5 * SyncpSize // samples, truncated when used as a count
	SyncLength      = 2 * SyncpSize
)
