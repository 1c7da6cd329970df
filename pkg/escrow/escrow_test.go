package escrow

import (
	"math/big"
	"testing"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		rateBps uint32
		fee     int64
		net     int64
	}{
		{"one percent", 10000, 100, 100, 9900},
		{"floor division", 99, 250, 2, 97},
		{"zero rate", 500, 0, 0, 500},
		{"max rate", 10000, MaxFeeRateBps, 1000, 9000},
		{"tiny amount rounds to zero fee", 9, 100, 0, 9},
		{"one base unit", 1, 1000, 0, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fee, net := SplitFee(big.NewInt(tc.amount), tc.rateBps)
			if fee.Int64() != tc.fee || net.Int64() != tc.net {
				t.Fatalf("SplitFee(%d, %d) = (%s, %s), want (%d, %d)",
					tc.amount, tc.rateBps, fee, net, tc.fee, tc.net)
			}
			if sum := new(big.Int).Add(fee, net); sum.Int64() != tc.amount {
				t.Fatalf("fee+net=%s does not equal amount %d", sum, tc.amount)
			}
		})
	}
}

func TestSplitFee_LargeAmount(t *testing.T) {
	amount, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	if !ok {
		t.Fatal("failed to build large amount")
	}
	fee, net := SplitFee(amount, 100)
	if new(big.Int).Add(fee, net).Cmp(amount) != 0 {
		t.Fatalf("fee+net must equal amount for large values, fee=%s net=%s", fee, net)
	}
	expected := new(big.Int).Div(amount, big.NewInt(100))
	if fee.Cmp(expected) != 0 {
		t.Fatalf("expected fee %s, got %s", expected, fee)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"100", "100", false},
		{"1", "1", false},
		{"340282366920938463463374607431768211455", "340282366920938463463374607431768211455", false},
		{"0", "", true},
		{"-5", "", true},
		{"1.5", "", true},
		{"abc", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) expected error, got %s", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) failed: %v", tc.in, err)
			}
			if got.String() != tc.want {
				t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(big.NewInt(12345)); got != "12345" {
		t.Fatalf("FormatAmount(12345) = %q", got)
	}
	if got := FormatAmount(nil); got != "0" {
		t.Fatalf("FormatAmount(nil) = %q", got)
	}
}
