package model

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// URLIDAlphabet omits characters that are easily confused when read aloud or
// typed from a screen (0/O, 1/l/I, 2/Z, 5/S and friends).
const URLIDAlphabet = "346789ABCDEFGHJKLMNPQRTUVWXYabcdefghijkmnpqrtwxyz"

// URLIDLength is the length of a research's public id.
const URLIDLength = 20

// NewURLID returns a random public research id drawn uniformly from URLIDAlphabet.
func NewURLID() (string, error) {
	const n = len(URLIDAlphabet)
	// Largest multiple of n that fits in a byte; bytes above it are rejected
	// so every character is equally likely.
	limit := byte(256 - 256%n)

	out := make([]byte, 0, URLIDLength)
	buf := make([]byte, URLIDLength*2)
	for len(out) < URLIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("model: generate url id: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, URLIDAlphabet[int(b)%n])
			if len(out) == URLIDLength {
				break
			}
		}
	}
	return string(out), nil
}

// IsValidURLID reports whether s has the shape of a generated research id.
func IsValidURLID(s string) bool {
	if len(s) != URLIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(URLIDAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
