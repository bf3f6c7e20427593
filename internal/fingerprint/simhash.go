// Package fingerprint computes 64-bit SimHash fingerprints over token
// shingles and compares them under a length-adaptive Hamming threshold.
package fingerprint

import (
	"encoding/binary"
	"math/bits"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	ShingleSize = 3
	titleWeight = 2
	bodyWeight  = 1
)

// Engine is stateless; the zero value is ready to use and safe for
// concurrent calls.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Fingerprint returns the title-weighted SimHash of text. Zero means no
// tokens were found in either text or title.
func (e *Engine) Fingerprint(text, title string) uint64 {
	return Compute(text, title)
}

func (e *Engine) Distance(a, b uint64) int {
	return Distance(a, b)
}

func (e *Engine) IsNearDuplicate(a, b uint64, lengthHint int, explicit *int) bool {
	return IsNearDuplicate(a, b, lengthHint, explicit)
}

func Compute(text, title string) uint64 {
	bodyTokens := Tokenize(text)
	titleTokens := Tokenize(title)
	if len(bodyTokens) == 0 && len(titleTokens) == 0 {
		return 0
	}

	var weights [64]int
	for _, shingle := range Shingles(bodyTokens, ShingleSize) {
		accumulate(&weights, featureHash(shingle), bodyWeight)
	}
	for _, token := range titleTokens {
		accumulate(&weights, featureHash(token), titleWeight)
	}

	var result uint64
	for bit := 0; bit < 64; bit++ {
		if weights[bit] >= 0 {
			result |= uint64(1) << bit
		}
	}
	return result
}

func accumulate(weights *[64]int, h uint64, weight int) {
	for bit := 0; bit < 64; bit++ {
		if h&(uint64(1)<<bit) != 0 {
			weights[bit] += weight
		} else {
			weights[bit] -= weight
		}
	}
}

// Tokenize lowercases text and splits it into runs of ASCII letters, digits
// and Hangul syllables.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !isTokenRune(r)
	})
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r >= '가' && r <= '힣':
		return true
	}
	return false
}

// Shingles joins each sliding window of size tokens with a single space.
// Fewer tokens than size yield the whole sequence as one shingle.
func Shingles(tokens []string, size int) []string {
	if len(tokens) == 0 {
		return nil
	}
	if size <= 0 || len(tokens) < size {
		return []string{strings.Join(tokens, " ")}
	}

	out := make([]string, 0, len(tokens)-size+1)
	for i := 0; i+size <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+size], " "))
	}
	return out
}

// featureHash is BLAKE2b with an 8-byte digest read big-endian.
func featureHash(feature string) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(err) // unreachable: size is fixed and there is no key
	}
	_, _ = h.Write([]byte(feature))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// AdaptiveThreshold relaxes the allowed distance as cleaned text gets
// shorter.
func AdaptiveThreshold(length int) int {
	switch {
	case length >= 4000:
		return 5
	case length >= 2000:
		return 6
	case length >= 1000:
		return 7
	default:
		return 8
	}
}

// IsNearDuplicate reports whether two fingerprints are within threshold.
// A zero fingerprint never matches, including another zero. explicit
// overrides the adaptive threshold when non-nil.
func IsNearDuplicate(a, b uint64, lengthHint int, explicit *int) bool {
	if a == 0 || b == 0 {
		return false
	}
	threshold := AdaptiveThreshold(lengthHint)
	if explicit != nil {
		threshold = *explicit
	}
	return Distance(a, b) <= threshold
}
