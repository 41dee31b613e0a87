package fec

import "fmt"

// PBSize is a physical-block size in bytes.
type PBSize int

// Supported physical-block sizes (spec.md "PB size").
const (
	PB16  PBSize = 16
	PB136 PBSize = 136
	PB520 PBSize = 520
)

// NBits returns the number of information bits carried by one physical
// block of this size.
func (p PBSize) NBits() int { return int(p) * 8 }

// String implements fmt.Stringer.
func (p PBSize) String() string {
	switch p {
	case PB16:
		return "PB16"
	case PB136:
		return "PB136"
	case PB520:
		return "PB520"
	default:
		return fmt.Sprintf("PBSize(%d)", int(p))
	}
}

// CodeRate is one of the three turbo code rates IEEE 1901 allows.
type CodeRate int

const (
	Rate1_2 CodeRate = iota
	Rate16_21
	Rate16_18
)

// parityKeep returns how many parity-1 and parity-2 bits survive
// puncturing out of every 16 information bits, at this rate. Systematic
// bits are never punctured.
func (r CodeRate) parityKeep() (nPar1, nPar2 int) {
	switch r {
	case Rate1_2:
		return 8, 8
	case Rate16_21:
		return 3, 2
	case Rate16_18:
		return 1, 1
	default:
		panic(fmt.Sprintf("fec: unknown code rate %d", r))
	}
}

// String implements fmt.Stringer.
func (r CodeRate) String() string {
	switch r {
	case Rate1_2:
		return "1/2"
	case Rate16_21:
		return "16/21"
	case Rate16_18:
		return "16/18"
	default:
		return "unknown"
	}
}

const puncturePeriod = 16

// CalcEncodedBlockSize returns the number of coded bits produced by
// turbo-encoding one physical block of the given size at the given rate.
func CalcEncodedBlockSize(rate CodeRate, pbSize PBSize) int {
	n := pbSize.NBits()
	nPar1, nPar2 := rate.parityKeep()
	if n%puncturePeriod != 0 {
		panic(fmt.Sprintf("fec: pb size %d bits not a multiple of %d", n, puncturePeriod))
	}
	groups := n / puncturePeriod
	return n + groups*(nPar1+nPar2)
}

// --- RSC component encoder/trellis -----------------------------------

// The turbo code uses two identical 8-state recursive systematic
// convolutional encoders, feedback polynomial g0 = 1 + D + D^3 and
// feedforward polynomial g1 = 1 + D^2 + D^3 (IEEE 1901 generator
// polynomials), constraint length 4.
type rscBranch struct {
	next   int
	parity byte
}

var rscTrans [8][2]rscBranch
var rscRevTrans [8][]rscRevBranch

type rscRevBranch struct {
	prev   int
	bit    byte
	parity byte
}

func init() {
	for state := 0; state < 8; state++ {
		r1 := byte((state >> 2) & 1)
		r2 := byte((state >> 1) & 1)
		r3 := byte(state & 1)
		for bit := byte(0); bit < 2; bit++ {
			fb := bit ^ r1 ^ r3
			parity := fb ^ r2 ^ r3
			next := (int(fb) << 2) | (int(r1) << 1) | int(r2)
			rscTrans[state][bit] = rscBranch{next: next, parity: parity}
		}
	}
	for state := 0; state < 8; state++ {
		for bit := byte(0); bit < 2; bit++ {
			b := rscTrans[state][bit]
			rscRevTrans[b.next] = append(rscRevTrans[b.next], rscRevBranch{prev: state, bit: bit, parity: b.parity})
		}
	}
}

// FrameControlInfoBits is the number of systematic information bits the
// dedicated frame-control code path carries; one single-pass RSC
// component encoder turns them into FrameControlCodedBits coded bits
// (rate 1/2), sharing the codec family with the payload turbo code per
// §4.2 but skipping the second (interleaved) component and the
// iterative decode, since 128 bits needs no comparable gain from a full
// turbo pass.
const (
	FrameControlInfoBits  = 64
	FrameControlCodedBits = 2 * FrameControlInfoBits
)

// FCEncode encodes a 64-bit frame-control information vector into 128
// coded bits (systematic || parity) using the same RSC component code as
// the payload turbo encoder's first constituent.
func FCEncode(info []byte) []byte {
	if len(info) != FrameControlInfoBits {
		panic(fmt.Sprintf("fec: FCEncode: input length %d != %d", len(info), FrameControlInfoBits))
	}
	par := rscEncode(info)
	out := make([]byte, 0, FrameControlCodedBits)
	out = append(out, info...)
	out = append(out, par...)
	return out
}

// FCDecode soft-decodes 128 frame-control LLRs (systematic || parity,
// positive meaning bit 0) back into 64 hard-decided information bits via
// a single max-log-MAP BCJR pass (no iteration, no second code — see
// FCEncode).
func FCDecode(softBits []float64) []byte {
	if len(softBits) != FrameControlCodedBits {
		panic(fmt.Sprintf("fec: FCDecode: input length %d != %d", len(softBits), FrameControlCodedBits))
	}
	llrSys := softBits[:FrameControlInfoBits]
	llrPar := softBits[FrameControlInfoBits:]
	apriori := make([]float64, FrameControlInfoBits)
	total := bcjr(llrSys, llrPar, apriori)
	out := make([]byte, FrameControlInfoBits)
	for i, v := range total {
		if v < 0 {
			out[i] = 1
		}
	}
	return out
}

// rscEncode runs the component encoder over input starting from state 0
// (no trellis termination) and returns the parity stream.
func rscEncode(input []byte) []byte {
	parity := make([]byte, len(input))
	state := 0
	for i, bit := range input {
		b := rscTrans[state][bit]
		parity[i] = b.parity
		state = b.next
	}
	return parity
}

// --- Turbo interleaver (QPP) ------------------------------------------

// qppCoeffs holds (f1, f2) coefficients of the quadratic permutation
// polynomial perm(i) = (f1*i + f2*i^2) mod n used as the turbo
// interleaver, chosen so that f2 is divisible by every prime factor of n
// (and by 4 when 4|n) and f1 is coprime to n — the standard QPP bijection
// condition. Precomputed once per PB size, immutable thereafter.
type qppCoeffs struct{ f1, f2 int }

var turboInterleaverCoeffs = map[PBSize]qppCoeffs{
	PB16:  {f1: 31, f2: 4},
	PB136: {f1: 45, f2: 68},
	PB520: {f1: 33, f2: 260},
}

var turboInterleaverSequence = map[PBSize][]int{}

func init() {
	for pb, c := range turboInterleaverCoeffs {
		n := pb.NBits()
		perm := make([]int, n)
		for i := 0; i < n; i++ {
			perm[i] = (c.f1*i + c.f2*i*i) % n
		}
		turboInterleaverSequence[pb] = perm
	}
}

// TurboInterleaverSequence returns the precomputed, deterministic
// permutation used as the turbo interleaver for pbSize.
func TurboInterleaverSequence(pbSize PBSize) []int {
	seq, ok := turboInterleaverSequence[pbSize]
	if !ok {
		panic(fmt.Sprintf("fec: no turbo interleaver for pb size %d", pbSize))
	}
	return seq
}

func interleaveBytes(in []byte, perm []int) []byte {
	out := make([]byte, len(in))
	for t, p := range perm {
		out[t] = in[p]
	}
	return out
}

func deinterleaveFloats(interleaved []float64, perm []int) []float64 {
	out := make([]float64, len(interleaved))
	for t, p := range perm {
		out[p] = interleaved[t]
	}
	return out
}

func interleaveFloats(in []float64, perm []int) []float64 {
	out := make([]float64, len(in))
	for t, p := range perm {
		out[t] = in[p]
	}
	return out
}

// --- Puncturing ---------------------------------------------------------

// evenSelect returns k indices in [0,n) spread as evenly as possible.
func evenSelect(n, k int) []int {
	if k == 0 {
		return nil
	}
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		idx[i] = (i * n) / k
	}
	return idx
}

// depuncture maps a received soft (LLR) stream back onto systematic /
// parity1 / parity2 LLR vectors of length n, inserting a zero (erasure)
// LLR at every punctured position.
func depuncture(softBits []float64, n int, rate CodeRate) (llrSys, llrPar1, llrPar2 []float64) {
	keep1Set, keep2Set := punctureKeepSets(rate)

	llrSys = make([]float64, n)
	llrPar1 = make([]float64, n)
	llrPar2 = make([]float64, n)

	pos := 0
	for i := 0; i < n; i++ {
		llrSys[i] = softBits[pos]
		pos++
		if keep1Set[i%puncturePeriod] {
			llrPar1[i] = softBits[pos]
			pos++
		}
		if keep2Set[i%puncturePeriod] {
			llrPar2[i] = softBits[pos]
			pos++
		}
	}
	return
}

// --- Public encode/decode API ------------------------------------------

// TurboEncode turbo-encodes a PB-size-aligned information bit vector
// (one bit per byte, 0/1) at the given code rate, returning the coded
// bitstream of CalcEncodedBlockSize(rate, pbSize) bits.
func TurboEncode(info []byte, pbSize PBSize, rate CodeRate) []byte {
	sys, par := TurboEncodeSplit(info, pbSize, rate)
	return MergeSysPar(sys, par, rate)
}

// TurboEncodeSplit runs the turbo encoder and returns it as the two
// logical streams the channel interleaver operates on (§4.3): the
// systematic stream (the information bits verbatim — never punctured)
// and the parity stream (the punctured, interleaved concatenation of
// both RSC component encoders' outputs, in transmission order). Merge
// them back into the single coded bitstream with MergeSysPar /
// MergeSysParSoft.
func TurboEncodeSplit(info []byte, pbSize PBSize, rate CodeRate) (sys, par []byte) {
	n := pbSize.NBits()
	if len(info) != n {
		panic(fmt.Sprintf("fec: TurboEncodeSplit: input length %d != pb bits %d", len(info), n))
	}
	perm := TurboInterleaverSequence(pbSize)

	par1 := rscEncode(info)
	interleavedInfo := interleaveBytes(info, perm)
	par2 := rscEncode(interleavedInfo)

	sys = append([]byte(nil), info...)
	par = punctureParity(par1, par2, rate)
	return
}

// punctureParity interleaves the two parity streams into transmission
// order, keeping only the evenly-spaced subset each survives per group
// of 16 information bits (§4.2 puncturing), with no systematic bits
// interspersed — that is MergeSysPar's job.
func punctureParity(par1, par2 []byte, rate CodeRate) []byte {
	n := len(par1)
	nPar1, nPar2 := rate.parityKeep()
	keep1Set, keep2Set := punctureKeepSets(rate)
	out := make([]byte, 0, n*(nPar1+nPar2)/puncturePeriod)
	for i := 0; i < n; i++ {
		if keep1Set[i%puncturePeriod] {
			out = append(out, par1[i])
		}
		if keep2Set[i%puncturePeriod] {
			out = append(out, par2[i])
		}
	}
	return out
}

func punctureKeepSets(rate CodeRate) (keep1, keep2 map[int]bool) {
	nPar1, nPar2 := rate.parityKeep()
	k1 := evenSelect(puncturePeriod, nPar1)
	k2 := evenSelect(puncturePeriod, nPar2)
	keep1 = make(map[int]bool, len(k1))
	for _, k := range k1 {
		keep1[k] = true
	}
	keep2 = make(map[int]bool, len(k2))
	for _, k := range k2 {
		keep2[k] = true
	}
	return
}

// MergeSysPar reassembles the systematic and (already punctured) parity
// streams channel deinterleaving hands back into the single combined
// coded bitstream TurboDecode expects — the inverse of the split
// TurboEncodeSplit/punctureParity performs.
func MergeSysPar(sys, par []byte, rate CodeRate) []byte {
	keep1Set, keep2Set := punctureKeepSets(rate)
	n := len(sys)
	out := make([]byte, 0, n+len(par))
	pos := 0
	for i := 0; i < n; i++ {
		out = append(out, sys[i])
		if keep1Set[i%puncturePeriod] {
			out = append(out, par[pos])
			pos++
		}
		if keep2Set[i%puncturePeriod] {
			out = append(out, par[pos])
			pos++
		}
	}
	return out
}

// MergeSysParSoft is MergeSysPar's soft-LLR counterpart, used to
// reassemble the channel-deinterleaved systematic/parity LLR streams
// into the combined stream TurboDecode's depuncture step expects.
func MergeSysParSoft(sys, par []float64, rate CodeRate) []float64 {
	keep1Set, keep2Set := punctureKeepSets(rate)
	n := len(sys)
	out := make([]float64, 0, n+len(par))
	pos := 0
	for i := 0; i < n; i++ {
		out = append(out, sys[i])
		if keep1Set[i%puncturePeriod] {
			out = append(out, par[pos])
			pos++
		}
		if keep2Set[i%puncturePeriod] {
			out = append(out, par[pos])
			pos++
		}
	}
	return out
}

const turboIterations = 8

// bcjr runs one max-log-MAP forward/backward pass over an open (no
// forced final state) 8-state trellis, returning the a-posteriori LLR
// for each information bit. llrSys, llrPar and llrApriori must be the
// same length.
func bcjr(llrSys, llrPar, llrApriori []float64) []float64 {
	n := len(llrSys)
	const negInf = -1e18

	alpha := make([][8]float64, n+1)
	beta := make([][8]float64, n+1)
	for s := 1; s < 8; s++ {
		alpha[0][s] = negInf
	}
	for s := 0; s < 8; s++ {
		beta[n][s] = 0 // open trellis: uniform prior over final state
	}

	branchMetric := func(t int, bit byte, parity byte) float64 {
		sign := func(b byte) float64 {
			if b == 0 {
				return 1
			}
			return -1
		}
		return sign(bit)*(llrSys[t]+llrApriori[t]) + sign(parity)*llrPar[t]
	}

	for t := 0; t < n; t++ {
		for s := 0; s < 8; s++ {
			alpha[t+1][s] = negInf
		}
		for s := 0; s < 8; s++ {
			if alpha[t][s] == negInf {
				continue
			}
			for bit := byte(0); bit < 2; bit++ {
				b := rscTrans[s][bit]
				m := alpha[t][s] + branchMetric(t, bit, b.parity)
				if m > alpha[t+1][b.next] {
					alpha[t+1][b.next] = m
				}
			}
		}
	}

	for t := n - 1; t >= 0; t-- {
		for s := 0; s < 8; s++ {
			best := negInf
			for bit := byte(0); bit < 2; bit++ {
				b := rscTrans[s][bit]
				m := beta[t+1][b.next] + branchMetric(t, bit, b.parity)
				if m > best {
					best = m
				}
			}
			beta[t][s] = best
		}
	}

	out := make([]float64, n)
	for t := 0; t < n; t++ {
		best0, best1 := negInf, negInf
		for s := 0; s < 8; s++ {
			if alpha[t][s] == negInf {
				continue
			}
			for bit := byte(0); bit < 2; bit++ {
				b := rscTrans[s][bit]
				m := alpha[t][s] + branchMetric(t, bit, b.parity) + beta[t+1][b.next]
				if bit == 0 {
					if m > best0 {
						best0 = m
					}
				} else {
					if m > best1 {
						best1 = m
					}
				}
			}
		}
		out[t] = best0 - best1
	}
	return out
}

// TurboDecode iteratively decodes a received soft-bit (LLR) stream of
// length CalcEncodedBlockSize(rate, pbSize), positive LLR meaning bit 0
// more likely, returning the hard-decided information bits.
func TurboDecode(softBits []float64, pbSize PBSize, rate CodeRate) []byte {
	n := pbSize.NBits()
	if len(softBits) != CalcEncodedBlockSize(rate, pbSize) {
		panic(fmt.Sprintf("fec: TurboDecode: input length %d != encoded block size %d",
			len(softBits), CalcEncodedBlockSize(rate, pbSize)))
	}
	perm := TurboInterleaverSequence(pbSize)
	llrSys, llrPar1, llrPar2 := depuncture(softBits, n, rate)

	llrA1 := make([]float64, n)
	var extr2Deint []float64

	for iter := 0; iter < turboIterations; iter++ {
		total1 := bcjr(llrSys, llrPar1, llrA1)
		extr1 := make([]float64, n)
		for i := range extr1 {
			extr1[i] = total1[i] - llrSys[i] - llrA1[i]
		}

		llrSys2 := interleaveFloats(llrSys, perm)
		llrA2 := interleaveFloats(extr1, perm)
		total2 := bcjr(llrSys2, llrPar2, llrA2)
		extr2 := make([]float64, n)
		for i := range extr2 {
			extr2[i] = total2[i] - llrSys2[i] - llrA2[i]
		}
		extr2Deint = deinterleaveFloats(extr2, perm)
		llrA1 = extr2Deint
	}

	finalLLR := make([]float64, n)
	for i := range finalLLR {
		finalLLR[i] = llrSys[i] + llrA1[i]
	}

	out := make([]byte, n)
	for i, v := range finalLLR {
		if v < 0 {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}
