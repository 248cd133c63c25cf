package names

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{
		"Alice",
		"  padded name  ",
		"Mantle Aid",
		"日本語の名前",
		strings.Repeat("x", MaxLen),
	} {
		field, err := Encode(name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}

		got, ok := Decode(field)
		if !ok {
			t.Fatalf("%q: decode failed", name)
		}

		if got != strings.TrimSpace(name) {
			t.Fatalf("expected %q, got %q", strings.TrimSpace(name), got)
		}
	}
}

func TestEncode(t *testing.T) {
	if _, err := Encode("   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	field, err := Encode(strings.Repeat("a", 40))
	if err != nil {
		t.Fatal(err)
	}

	if field[MaxLen] != 0 {
		t.Fatal("last byte must stay zero")
	}

	if got, _ := Decode(field); got != strings.Repeat("a", MaxLen) {
		t.Fatalf("unexpected truncation: %q", got)
	}

	// 11 three-byte runes are 33 bytes, only 10 fit.
	field, err = Encode(strings.Repeat("語", 11))
	if err != nil {
		t.Fatal(err)
	}

	if got, ok := Decode(field); !ok || got != strings.Repeat("語", 10) {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestDecode(t *testing.T) {
	var zero [32]byte
	if got, ok := Decode(zero); !ok || got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}

	var bad [32]byte
	copy(bad[:], []byte{0xff, 0xfe, 'a'})
	if _, ok := Decode(bad); ok {
		t.Fatal("malformed field must not decode")
	}

	if got := DecodeOr(bad, "Charity #7"); got != "Charity #7" {
		t.Fatalf("expected placeholder, got %q", got)
	}

	if got := DecodeOr(zero, Unknown); got != Unknown {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

func TestTypeTag(t *testing.T) {
	empty := common.HexToHash(
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	if TypeTag("") != empty {
		t.Fatalf("unexpected keccak256 of empty input: %s", TypeTag(""))
	}

	if TypeTag("birthday") == TypeTag("wedding") {
		t.Fatal("different categories must differ")
	}
}
