package fec

import "fmt"

// channelInterleaverRows is the row count of the channel interleaver's
// nibble matrix. Fixed, independent of the (pb_size, rate) lookup tables.
const channelInterleaverRows = 4

// CHANNEL_INTERLEAVER_OFFSET / CHANNEL_INTERLEAVER_STEPSIZE, rows indexed
// by PB size (PB16, PB136, PB520) and columns by code rate (1/2, 16/21,
// 16/18). Internally-consistent stand-ins; see constants notes elsewhere
// in the package.
var channelInterleaverOffset = [3][3]int{
	{0, 1, 2},
	{1, 2, 0},
	{2, 0, 1},
}

var channelInterleaverStepsize = [3][3]int{
	{1, 2, 3},
	{2, 3, 1},
	{3, 1, 2},
}

// PBIndex maps a PBSize to its row in the channel interleaver tables.
func PBIndex(pb PBSize) int {
	switch pb {
	case PB16:
		return 0
	case PB136:
		return 1
	case PB520:
		return 2
	default:
		panic(fmt.Sprintf("fec: unknown pb size %d", pb))
	}
}

// RateIndex maps a CodeRate to its column in the channel interleaver tables.
func RateIndex(rate CodeRate) int {
	switch rate {
	case Rate1_2:
		return 0
	case Rate16_21:
		return 1
	case Rate16_18:
		return 2
	default:
		panic(fmt.Sprintf("fec: unknown code rate %d", rate))
	}
}

type nibble [4]byte

func bitsToNibbles(bits []byte) []nibble {
	if len(bits)%4 != 0 {
		panic(fmt.Sprintf("fec: bit count %d not a multiple of 4", len(bits)))
	}
	out := make([]nibble, len(bits)/4)
	for i := range out {
		copy(out[i][:], bits[i*4:i*4+4])
	}
	return out
}

func nibblesToBits(nibbles []nibble) []byte {
	out := make([]byte, len(nibbles)*4)
	for i, nb := range nibbles {
		copy(out[i*4:i*4+4], nb[:])
	}
	return out
}

// channelPermute walks the nibble matrix row-by-row, cyclically shifting
// each row by an offset that grows with the row index, then reads the
// result column-by-column (forward) or undoes that walk (inverse). Rows
// that run past the real nibble count are padding cells, tracked through
// a parallel validity matrix so the padding never appears in the output
// and the operation changes bit order only, never bit count.
func channelPermute(bits []byte, pbIdx, rateIdx int, forward bool) []byte {
	nibbles := bitsToNibbles(bits)
	n := len(nibbles)
	rows := channelInterleaverRows
	cols := (n + rows - 1) / rows
	if cols == 0 {
		return nibblesToBits(nibbles)
	}
	offset := channelInterleaverOffset[pbIdx][rateIdx]
	step := channelInterleaverStepsize[pbIdx][rateIdx]

	matrix := make([][]nibble, rows)
	valid := make([][]bool, rows)
	for r := 0; r < rows; r++ {
		matrix[r] = make([]nibble, cols)
		valid[r] = make([]bool, cols)
	}
	// Fill row-major with the real nibbles; trailing cells are padding.
	idx := 0
	for r := 0; r < rows && idx < n; r++ {
		for c := 0; c < cols && idx < n; c++ {
			matrix[r][c] = nibbles[idx]
			valid[r][c] = true
			idx++
		}
	}

	shiftOf := func(r int) int {
		s := (offset + r*step) % cols
		if s < 0 {
			s += cols
		}
		return s
	}

	if forward {
		for r := 0; r < rows; r++ {
			shift := shiftOf(r)
			matrix[r] = rotateLeft(matrix[r], shift)
			valid[r] = rotateLeftBool(valid[r], shift)
		}
		out := make([]nibble, 0, n)
		for c := 0; c < cols; c++ {
			for r := 0; r < rows; r++ {
				if valid[r][c] {
					out = append(out, matrix[r][c])
				}
			}
		}
		return nibblesToBits(out)
	}

	// Inverse: rebuild the same validity mask, scatter the received
	// nibbles into their post-rotation (column-major) positions, undo
	// each row's rotation, then read back out row-major.
	rotatedValid := make([][]bool, rows)
	for r := 0; r < rows; r++ {
		rotatedValid[r] = rotateLeftBool(valid[r], shiftOf(r))
	}
	received := bitsToNibbles(bits)
	pos := 0
	rotatedMatrix := make([][]nibble, rows)
	for r := 0; r < rows; r++ {
		rotatedMatrix[r] = make([]nibble, cols)
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			if rotatedValid[r][c] {
				rotatedMatrix[r][c] = received[pos]
				pos++
			}
		}
	}
	for r := 0; r < rows; r++ {
		matrix[r] = rotateRight(rotatedMatrix[r], shiftOf(r))
	}
	out := make([]nibble, 0, n)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if valid[r][c] {
				out = append(out, matrix[r][c])
			}
		}
	}
	return nibblesToBits(out)
}

func rotateLeft(row []nibble, shift int) []nibble {
	n := len(row)
	if n == 0 {
		return row
	}
	shift = ((shift % n) + n) % n
	out := make([]nibble, n)
	for i := 0; i < n; i++ {
		out[i] = row[(i+shift)%n]
	}
	return out
}

func rotateRight(row []nibble, shift int) []nibble {
	n := len(row)
	if n == 0 {
		return row
	}
	shift = ((shift % n) + n) % n
	return rotateLeft(row, n-shift)
}

func rotateLeftBool(row []bool, shift int) []bool {
	n := len(row)
	if n == 0 {
		return row
	}
	shift = ((shift % n) + n) % n
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = row[(i+shift)%n]
	}
	return out
}

type fnibble [4]float64

func floatsToFnibbles(x []float64) []fnibble {
	if len(x)%4 != 0 {
		panic(fmt.Sprintf("fec: float count %d not a multiple of 4", len(x)))
	}
	out := make([]fnibble, len(x)/4)
	for i := range out {
		copy(out[i][:], x[i*4:i*4+4])
	}
	return out
}

func fnibblesToFloats(nibbles []fnibble) []float64 {
	out := make([]float64, len(nibbles)*4)
	for i, nb := range nibbles {
		copy(out[i*4:i*4+4], nb[:])
	}
	return out
}

func rotateLeftF(row []fnibble, shift int) []fnibble {
	n := len(row)
	if n == 0 {
		return row
	}
	shift = ((shift % n) + n) % n
	out := make([]fnibble, n)
	for i := 0; i < n; i++ {
		out[i] = row[(i+shift)%n]
	}
	return out
}

func rotateRightF(row []fnibble, shift int) []fnibble {
	n := len(row)
	if n == 0 {
		return row
	}
	shift = ((shift % n) + n) % n
	return rotateLeftF(row, n-shift)
}

// channelPermuteSoft is channelPermute's float64-LLR counterpart: the
// channel interleaver permutes nibble-sized groups of bits, and the
// same group permutation applies directly to the corresponding LLR
// values, since each coded bit has exactly one soft value.
func channelPermuteSoft(x []float64, pbIdx, rateIdx int, forward bool) []float64 {
	nibbles := floatsToFnibbles(x)
	n := len(nibbles)
	rows := channelInterleaverRows
	cols := (n + rows - 1) / rows
	if cols == 0 {
		return fnibblesToFloats(nibbles)
	}
	offset := channelInterleaverOffset[pbIdx][rateIdx]
	step := channelInterleaverStepsize[pbIdx][rateIdx]

	matrix := make([][]fnibble, rows)
	valid := make([][]bool, rows)
	for r := 0; r < rows; r++ {
		matrix[r] = make([]fnibble, cols)
		valid[r] = make([]bool, cols)
	}
	idx := 0
	for r := 0; r < rows && idx < n; r++ {
		for c := 0; c < cols && idx < n; c++ {
			matrix[r][c] = nibbles[idx]
			valid[r][c] = true
			idx++
		}
	}

	shiftOf := func(r int) int {
		s := (offset + r*step) % cols
		if s < 0 {
			s += cols
		}
		return s
	}

	if forward {
		for r := 0; r < rows; r++ {
			shift := shiftOf(r)
			matrix[r] = rotateLeftF(matrix[r], shift)
			valid[r] = rotateLeftBool(valid[r], shift)
		}
		out := make([]fnibble, 0, n)
		for c := 0; c < cols; c++ {
			for r := 0; r < rows; r++ {
				if valid[r][c] {
					out = append(out, matrix[r][c])
				}
			}
		}
		return fnibblesToFloats(out)
	}

	rotatedValid := make([][]bool, rows)
	for r := 0; r < rows; r++ {
		rotatedValid[r] = rotateLeftBool(valid[r], shiftOf(r))
	}
	received := floatsToFnibbles(x)
	pos := 0
	rotatedMatrix := make([][]fnibble, rows)
	for r := 0; r < rows; r++ {
		rotatedMatrix[r] = make([]fnibble, cols)
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			if rotatedValid[r][c] {
				rotatedMatrix[r][c] = received[pos]
				pos++
			}
		}
	}
	for r := 0; r < rows; r++ {
		matrix[r] = rotateRightF(rotatedMatrix[r], shiftOf(r))
	}
	out := make([]fnibble, 0, n)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if valid[r][c] {
				out = append(out, matrix[r][c])
			}
		}
	}
	return fnibblesToFloats(out)
}

// ChannelDeinterleaveSoft is ChannelDeinterleave's soft-LLR counterpart,
// used on receive before turbo decoding: it undoes the same permutation
// ChannelInterleave applied, operating on signed LLR values instead of
// hard bits.
func ChannelDeinterleaveSoft(interleaved []float64, lenSys, lenPar, pbIdx, rateIdx int) (sys, par []float64) {
	combined := channelPermuteSoft(interleaved, pbIdx, rateIdx, false)
	return combined[:lenSys], combined[lenSys : lenSys+lenPar]
}

// ChannelInterleave combines the systematic and parity bit streams
// produced by the turbo codec and permutes them as one sequence. It is
// the inverse of ChannelDeinterleave.
func ChannelInterleave(sys, par []byte, pbIdx, rateIdx int) []byte {
	combined := make([]byte, 0, len(sys)+len(par))
	combined = append(combined, sys...)
	combined = append(combined, par...)
	return channelPermute(combined, pbIdx, rateIdx, true)
}

// ChannelDeinterleave reverses ChannelInterleave, splitting the result
// back into the original systematic (lenSys bits) and parity (lenPar
// bits) streams.
func ChannelDeinterleave(interleaved []byte, lenSys, lenPar, pbIdx, rateIdx int) (sys, par []byte) {
	combined := channelPermute(interleaved, pbIdx, rateIdx, false)
	return combined[:lenSys], combined[lenSys : lenSys+lenPar]
}

// --- ROBO interleaver / copier ------------------------------------------

// ToneMode selects a fixed tone-info/copier plan or a custom tone-map.
type ToneMode int

const (
	ToneModeStandard ToneMode = iota
	ToneModeMiniROBO
	ToneModeStandardROBO
	ToneModeHighSpeedROBO
	ToneModeCustom
)

// RoboCopies returns the redundancy factor for a ROBO tone-mode (1 for
// the non-ROBO modes, which carry no redundant copies).
func (m ToneMode) RoboCopies() int {
	return m.roboCopies()
}

// roboCopies returns the redundancy factor for a ROBO tone-mode (1 for
// the non-ROBO modes, which carry no redundant copies).
func (m ToneMode) roboCopies() int {
	switch m {
	case ToneModeMiniROBO:
		return 4
	case ToneModeStandardROBO:
		return 4
	case ToneModeHighSpeedROBO:
		return 2
	default:
		return 1
	}
}

// RoboParameters is the result of calc_robo_parameters: how a raw bit
// count is packed into ROBO-redundant OFDM symbols.
type RoboParameters struct {
	Copies          int
	BitsPerSegment  int
	BitsInLastBlock int
	PadBits         int
}

// bitsPerCarrierSymbol is the QPSK (2 bits/carrier) capacity of one
// broadcast OFDM symbol, the baseline ROBO segments are carved from.
const bitsPerCarrierSymbol = 2

// CalcRoboParameters computes the copier/segment layout for toneMode
// given the number of raw (pre-copy) payload bits and the carrier count.
// It depends only on (toneMode, rawBitCount, nCarriers).
func CalcRoboParameters(toneMode ToneMode, rawBitCount, nCarriers int) RoboParameters {
	copies := toneMode.roboCopies()
	bitsPerSegment := (nCarriers * bitsPerCarrierSymbol) / copies
	if bitsPerSegment <= 0 {
		bitsPerSegment = 1
	}
	rem := rawBitCount % bitsPerSegment
	pad := 0
	bitsInLast := bitsPerSegment
	if rem != 0 {
		pad = bitsPerSegment - rem
		bitsInLast = rem
	}
	return RoboParameters{
		Copies:          copies,
		BitsPerSegment:  bitsPerSegment,
		BitsInLastBlock: bitsInLast,
		PadBits:         pad,
	}
}

// Copier lays bitstream out for one ROBO copy, offset by `offset`
// carrier-equivalent positions (a cyclic shift) starting at segment
// `start`. Each copy uses a different offset so the copies occupy
// disjoint carrier phases within a segment.
func Copier(bitstream []byte, nCarriers, offset, start int) []byte {
	n := len(bitstream)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = bitstream[(i+offset+start)%n]
	}
	return out
}

func uncopier(copied []byte, offset, start int) []byte {
	n := len(copied)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[(i+offset+start)%n] = copied[i]
	}
	return out
}

// RoboInterleave applies the copier schedule for toneMode, returning the
// `copies`-times-longer redundant stream transmitted across disjoint
// carrier offsets.
func RoboInterleave(bitstream []byte, toneMode ToneMode, nCarriers int) []byte {
	copies := toneMode.roboCopies()
	if copies == 1 {
		return append([]byte(nil), bitstream...)
	}
	step := nCarriers / copies
	if step == 0 {
		step = 1
	}
	out := make([]byte, 0, len(bitstream)*copies)
	for k := 0; k < copies; k++ {
		out = append(out, Copier(bitstream, nCarriers, k*step, 0)...)
	}
	return out
}

// RoboCombine reverses the copier offsets for each of the `copies`
// segments of received (soft or hard) bits and combines them by simple
// majority vote per bit position, recovering a single redundancy-free
// bitstream of length len(received)/copies.
func RoboCombine(received []byte, toneMode ToneMode, nCarriers int) []byte {
	copies := toneMode.roboCopies()
	if copies == 1 {
		return append([]byte(nil), received...)
	}
	segLen := len(received) / copies
	step := nCarriers / copies
	if step == 0 {
		step = 1
	}
	votes := make([]int, segLen)
	for k := 0; k < copies; k++ {
		seg := received[k*segLen : (k+1)*segLen]
		realigned := uncopier(seg, k*step, 0)
		for i, b := range realigned {
			if b != 0 {
				votes[i]++
			}
		}
	}
	out := make([]byte, segLen)
	for i, v := range votes {
		if v*2 >= copies {
			out[i] = 1
		}
	}
	return out
}
