package helpers

import (
	"math/big"
	"testing"
)

func TestCompareBytes(t *testing.T) {
	tests := []struct {
		name string
		a    []byte
		b    []byte
		want int
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, 0},
		{"a less", []byte{1, 2, 3}, []byte{1, 2, 4}, -1},
		{"a greater", []byte{1, 2, 4}, []byte{1, 2, 3}, 1},
		{"a shorter", []byte{1, 2}, []byte{1, 2, 3}, -1},
		{"a longer", []byte{1, 2, 3}, []byte{1, 2}, 1},
		{"empty equal", []byte{}, []byte{}, 0},
		{"a empty", []byte{}, []byte{1}, -1},
		{"b empty", []byte{1}, []byte{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareBytes(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("CompareBytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBytesEqual(t *testing.T) {
	tests := []struct {
		name string
		a    []byte
		b    []byte
		want bool
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, true},
		{"not equal", []byte{1, 2, 3}, []byte{1, 2, 4}, false},
		{"different length", []byte{1, 2}, []byte{1, 2, 3}, false},
		{"empty equal", []byte{}, []byte{}, true},
		{"nil equal", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesEqual(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("BytesEqual = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsZeroBytes(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		want bool
	}{
		{"all zeros", []byte{0, 0, 0}, true},
		{"has non-zero", []byte{0, 1, 0}, false},
		{"empty", []byte{}, true},
		{"single zero", []byte{0}, true},
		{"single non-zero", []byte{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsZeroBytes(tt.b)
			if got != tt.want {
				t.Errorf("IsZeroBytes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatRaw(t *testing.T) {
	tests := []struct {
		amount *big.Int
		want   string
	}{
		{big.NewInt(0), "0"},
		{big.NewInt(123), "123"},
		{nil, "0"},
	}

	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10) // u128::MAX
	tests = append(tests, struct {
		amount *big.Int
		want   string
	}{huge, "340282366920938463463374607431768211455"})

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatRaw(tt.amount)
			if got != tt.want {
				t.Errorf("FormatRaw(%v) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestParseRaw(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"123", "123", false},
		{"340282366920938463463374607431768211455", "340282366920938463463374607431768211455", false},
		{"", "", true},
		{"-1", "", true},
		{"1.5", "", true},
		{"not a number", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRaw(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseRaw(%s) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestFormatParseRawRoundtrip(t *testing.T) {
	amounts := []string{"0", "1", "100", "12345678901234567890"}

	for _, amount := range amounts {
		parsed, err := ParseRaw(amount)
		if err != nil {
			t.Fatalf("ParseRaw(%s) failed: %v", amount, err)
		}
		if formatted := FormatRaw(parsed); formatted != amount {
			t.Errorf("roundtrip failed: %s -> %s", amount, formatted)
		}
	}
}
