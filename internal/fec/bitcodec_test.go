package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestScramble_Involution(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 4096).Draw(t, "n")
		bits := make([]byte, n)
		for i := range bits {
			bits[i] = byte(rapid.IntRange(0, 1).Draw(t, "bit"))
		}

		scrambled := Scramble(bits)
		assert.Equal(t, len(bits), len(scrambled))

		recovered := Scramble(scrambled)
		assert.Equal(t, bits, recovered, "Scramble must be its own inverse")
	})
}

func TestScramble_NonIdentity(t *testing.T) {
	bits := make([]byte, 64)
	scrambled := Scramble(bits)
	assert.NotEqual(t, bits, scrambled, "scrambler must not degenerate to the identity on an all-zero run")
}

func TestCRC24_AppendAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 2048).Draw(t, "n")
		bits := make([]byte, n)
		for i := range bits {
			bits[i] = byte(rapid.IntRange(0, 1).Draw(t, "bit"))
		}

		withCRC := append(append([]byte(nil), bits...), CRC24Bits(bits)...)
		assert.True(t, CRC24Check(withCRC), "CRC24Check must accept a freshly appended CRC")
	})
}

func TestCRC24Check_DetectsCorruption(t *testing.T) {
	bits := BytesToBitsMSB([]byte("the quick brown fox"))
	withCRC := append(bits, CRC24Bits(bits)...)
	assert.True(t, CRC24Check(withCRC))

	corrupted := append([]byte(nil), withCRC...)
	corrupted[3] ^= 1
	assert.False(t, CRC24Check(corrupted), "a single flipped bit must be caught")
}

func TestCRC24Check_ShortInputFails(t *testing.T) {
	assert.False(t, CRC24Check(make([]byte, 10)))
}

func TestBytesBits_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 256).Draw(t, "n")
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(rapid.IntRange(0, 255).Draw(t, "byte"))
		}

		bits := BytesToBitsMSB(data)
		assert.Equal(t, len(data)*8, len(bits))
		recovered := BitsToBytesMSB(bits)
		assert.Equal(t, data, recovered)
	})
}

func TestBytesToBitsMSB_Order(t *testing.T) {
	bits := BytesToBitsMSB([]byte{0x80})
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, bits, "0x80's top bit must come out first")
}
