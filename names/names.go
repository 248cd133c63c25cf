// Package names converts short display names to and from the fixed-width
// bytes32 fields stored by the gift ledger.
package names

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// MaxLen is the longest name in bytes. The last byte of a field stays zero.
const MaxLen = 31

// ErrInvalidInput is returned when a name is empty after trimming.
var ErrInvalidInput = errors.New("invalid name")

// Unknown is the placeholder for undecodable favorite names.
const Unknown = "Unknown"

// Encode truncates a trimmed name to MaxLen bytes and zero-pads it to 32.
// Truncation never splits a multi-byte character.
func Encode(name string) ([32]byte, error) {
	var field [32]byte

	name = strings.TrimSpace(name)
	if name == "" {
		return field, ErrInvalidInput
	}

	b := []byte(name)
	if len(b) > MaxLen {
		b = b[:MaxLen]
		for len(b) > 0 && !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
	}

	copy(field[:], b)
	return field, nil
}

// Decode returns the name stored in a field. ok is false when the field
// holds bytes that are not valid UTF-8. An all-zero field decodes to "".
func Decode(field [32]byte) (name string, ok bool) {
	b := bytes.TrimRight(field[:], "\x00")
	if len(b) == 0 {
		return "", true
	}

	if !utf8.Valid(b) {
		return "", false
	}

	return strings.TrimSpace(string(b)), true
}

// DecodeOr decodes a field, returning placeholder when the field is
// malformed or decodes to an empty name.
func DecodeOr(field [32]byte, placeholder string) string {
	name, ok := Decode(field)
	if !ok || name == "" {
		return placeholder
	}
	return name
}

// TypeTag hashes a gift category into the tag stored in ledger records.
func TypeTag(category string) common.Hash {
	return crypto.Keccak256Hash([]byte(category))
}
