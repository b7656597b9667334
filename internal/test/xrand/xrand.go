// Package xrand generates random test input from crypto/rand.
package xrand

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Bytes generates random bytes with length n.
func Bytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Reader.Read(b)
	if err != nil {
		panic(fmt.Sprintf("failed to generate rand bytes: %v", err))
	}
	return b
}

// Key generates a random 4 byte masking key.
func Key() [4]byte {
	var k [4]byte
	copy(k[:], Bytes(len(k)))
	return k
}

// Bool returns a randomly generated boolean.
func Bool() bool {
	return Int(2) == 1
}

// Int returns a randomly generated integer between [0, max).
func Int(max int) int {
	x, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to get random int: %v", err))
	}
	return int(x.Int64())
}

// Uint63 returns a randomly generated integer between [0, 1<<63).
func Uint63() uint64 {
	b := Bytes(8)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v &^ (1 << 63)
}
