package data

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)

	tests := []struct {
		in   string
		want *big.Int
		err  bool
	}{
		{"1", oneEther, false},
		{"0.5", big.NewInt(500000000000000000), false},
		{"0.000000000000000001", big.NewInt(1), false},
		{"0.0000000000000000001", nil, true},
		{"0", nil, true},
		{"-1", nil, true},
		{"abc", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.err {
			if err == nil {
				t.Fatalf("%s: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if got.Cmp(tt.want) != 0 {
			t.Fatalf("%s: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)

	if got := FormatAmount(wei); got != "1.5" {
		t.Fatalf("expected 1.5, got %s", got)
	}

	if got := FormatAmount(nil); got != "0" {
		t.Fatalf("expected 0, got %s", got)
	}
}
