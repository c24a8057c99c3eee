// Package wire converts loosely typed proof values into the fixed-width big-endian byte
// sequences the proof contract stores.
package wire

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Width is the size of every fixed-width contract value (addresses, signers, timestamps).
const Width = 32

// MaxExactInteger is the largest integer a JSON number carries without precision loss (2^53-1).
const MaxExactInteger int64 = 1<<53 - 1

var (
	ErrOutOfRange   = errors.New("wire: number is out of range")
	ErrMalformedHex = errors.New("wire: malformed hex")
)

// Bytes32 is a 32-byte big-endian, left-zero-padded value.
type Bytes32 [Width]byte

// Hex returns the 0x-prefixed lowercase hex form of b.
func (b Bytes32) Hex() string {
	return "0x" + hex.EncodeToString(b[:])
}

// MarshalText renders b as 0x-prefixed hex.
func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.Hex()), nil
}

// EncodeInteger returns n as exactly width big-endian bytes.
//
// n must be within [0, MaxExactInteger]. Zero encodes to width zero bytes.
func EncodeInteger(n int64, width int) ([]byte, error) {
	if n < 0 || n > MaxExactInteger {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	if width < 0 {
		return nil, fmt.Errorf("%w: negative width %d", ErrOutOfRange, width)
	}

	size := minimalSize(uint64(n))
	if size > width {
		return nil, fmt.Errorf("%w: %d needs %d bytes, width is %d", ErrOutOfRange, n, size, width)
	}

	out := make([]byte, width)
	x := uint64(n)
	for i := width - 1; i >= width-size; i-- {
		out[i] = byte(x & 0xff)
		x >>= 8
	}
	return out, nil
}

// Integer32 is EncodeInteger(n, 32) as a fixed array.
func Integer32(n int64) (Bytes32, error) {
	b, err := EncodeInteger(n, Width)
	if err != nil {
		return Bytes32{}, err
	}
	var out Bytes32
	copy(out[:], b)
	return out, nil
}

// EncodeHex decodes s (optional 0x prefix) and left-pads the result with zero bytes until it is
// at least width bytes long. Longer decodings are returned as-is, never truncated.
func EncodeHex(s string, width int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedHex, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	if len(raw) >= width {
		return raw, nil
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	return out, nil
}

// Hex32 is EncodeHex(s, 32) as a fixed array. Decodings longer than 32 bytes cannot be held and
// are rejected with ErrOutOfRange.
func Hex32(s string) (Bytes32, error) {
	b, err := EncodeHex(s, Width)
	if err != nil {
		return Bytes32{}, err
	}
	if len(b) != Width {
		return Bytes32{}, fmt.Errorf("%w: hex value is %d bytes, want at most %d", ErrOutOfRange, len(b), Width)
	}
	var out Bytes32
	copy(out[:], b)
	return out, nil
}

// DecodeInteger reverses EncodeInteger for any width.
func DecodeInteger(b []byte) (int64, error) {
	v := new(big.Int).SetBytes(b)
	if !v.IsInt64() || v.Int64() > MaxExactInteger {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, v.String())
	}
	return v.Int64(), nil
}

// IntegerFromJSON accepts integer-valued JSON numbers in any notation ("12", "1.2e1") and rejects
// fractional, negative, or inexact values.
func IntegerFromJSON(n json.Number) (int64, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrOutOfRange)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v < 0 || v > MaxExactInteger {
			return 0, fmt.Errorf("%w: %d", ErrOutOfRange, v)
		}
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrOutOfRange, s)
	}
	if f < 0 || f > float64(MaxExactInteger) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q is not an exact non-negative integer", ErrOutOfRange, s)
	}
	return int64(f), nil
}

func minimalSize(x uint64) int {
	size := 0
	for x > 0 {
		size++
		x >>= 8
	}
	return size
}
