// Package crypto implements the legacy Battle.net "broken SHA-1" (XSha1)
// transform and the token/hash password proof built on it.
//
// The transform is SHA-1 with two deliberate deviations kept for wire
// compatibility: the message schedule replaces the rotate-left-1 expansion
// with a bit-select of the XOR word, and input blocks are consumed
// little-endian with zero padding instead of Merkle-Damgard length padding.
package crypto

import (
	"crypto/subtle"
	"encoding/binary"
)

// DigestSize is the XSha1 digest size in bytes.
const DigestSize = 20

// HashBuffer runs the XSha1 transform over data and returns the five state
// words. Input is processed in 64-byte blocks, zero-padded at the tail.
func HashBuffer(data []byte) [5]uint32 {
	state := [5]uint32{0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476, 0xC3D2E1F0}

	var block [16]uint32
	for off := 0; off < len(data); off += 64 {
		chunk := data[off:]
		if len(chunk) > 64 {
			chunk = chunk[:64]
		}

		block = [16]uint32{}
		for j, b := range chunk {
			block[j>>2] |= uint32(b) << ((j & 3) * 8)
		}

		transform(&state, &block)
	}

	return state
}

// Hash returns the 20-byte big-endian XSha1 digest of data.
func Hash(data []byte) []byte {
	state := HashBuffer(data)
	out := make([]byte, DigestSize)
	for i, w := range state {
		binary.BigEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Proof computes the logon proof for the token challenge: the XSha1 digest
// of clientToken, serverToken (both LE) and the stored password hash.
func Proof(clientToken, serverToken uint32, passwordHash []byte) []byte {
	input := make([]byte, 8+len(passwordHash))
	binary.LittleEndian.PutUint32(input[0:4], clientToken)
	binary.LittleEndian.PutUint32(input[4:8], serverToken)
	copy(input[8:], passwordHash)
	return Hash(input)
}

// CheckProof verifies a client-supplied proof in constant time.
func CheckProof(clientToken, serverToken uint32, passwordHash, clientProof []byte) bool {
	expected := Proof(clientToken, serverToken, passwordHash)
	return subtle.ConstantTimeCompare(expected, clientProof) == 1
}

func transform(state *[5]uint32, block *[16]uint32) {
	var buf [80]uint32
	copy(buf[:16], block[:])

	// Broken expansion: instead of rotl(w, 1) the original sets exactly the
	// bit selected by the low five bits of the XOR word (plus its mirror
	// when the shift is zero).
	for i := 16; i < 80; i++ {
		dw := buf[i-16] ^ buf[i-8] ^ buf[i-14] ^ buf[i-3]
		s := dw & 31
		buf[i] = (1 >> ((32 - s) & 31)) | (1 << s)
	}

	a, b, c, d, e := state[0], state[1], state[2], state[3], state[4]

	for i := 0; i < 20; i++ {
		dw := rotl5(a) + ((^b & d) | (c & b)) + e + buf[i] + 0x5A827999
		e, d, c, b, a = d, c, rotr2(b), a, dw
	}
	for i := 20; i < 40; i++ {
		dw := (d ^ c ^ b) + e + rotl5(a) + buf[i] + 0x6ED9EBA1
		e, d, c, b, a = d, c, rotr2(b), a, dw
	}
	for i := 40; i < 60; i++ {
		dw := ((c & b) | (d & c) | (d & b)) + e + rotl5(a) + buf[i] + 0x8F1BBCDC
		e, d, c, b, a = d, c, rotr2(b), a, dw
	}
	for i := 60; i < 80; i++ {
		dw := rotl5(a) + e + (d ^ c ^ b) + buf[i] + 0xCA62C1D6
		e, d, c, b, a = d, c, rotr2(b), a, dw
	}

	state[0] += a
	state[1] += b
	state[2] += c
	state[3] += d
	state[4] += e
}

func rotl5(v uint32) uint32 { return (v << 5) | (v >> 27) }

func rotr2(v uint32) uint32 { return (v >> 2) | (v << 30) }
