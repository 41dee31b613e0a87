package phy

// Stats tracks the counters of §3: frames attempted/decoded, bit errors
// post-decoder, block errors, and the last SNR vector (populated by
// PHY-RXSNR).
type Stats struct {
	FramesAttempted int
	FramesDecoded   int
	BitErrors       int
	BlockErrors     int
	LastSNR         []float64
}

func (s *Stats) recordAttempt() { s.FramesAttempted++ }
func (s *Stats) recordDecoded() { s.FramesDecoded++ }

func (s *Stats) recordBlockResult(ok bool) {
	if !ok {
		s.BlockErrors++
	}
}

func (s *Stats) recordSNR(snr []float64) {
	s.LastSNR = append(s.LastSNR[:0], snr...)
}
