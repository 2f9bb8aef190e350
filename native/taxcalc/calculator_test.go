package taxcalc

import (
	"math/big"
	"testing"
)

const day = 24 * 60 * 60

func wad(numerator, denominator int64) *big.Int {
	v := new(big.Int).Mul(WAD, big.NewInt(numerator))
	return v.Quo(v, big.NewInt(denominator))
}

func TestCalculateTaxLiterals(t *testing.T) {
	tests := []struct {
		name          string
		floorMultiple uint64
		duration      uint64
		want          *big.Int
	}{
		{name: "kink premium for a week", floorMultiple: 200, duration: 7 * day, want: wad(4, 100)},
		{name: "low premium for a week", floorMultiple: 120, duration: 7 * day, want: wad(144, 10_000)},
		{name: "zero duration", floorMultiple: 500, duration: 0, want: big.NewInt(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateTax(tc.floorMultiple, tc.duration)
			if got.Cmp(tc.want) != 0 {
				t.Fatalf("tax(%d, %d) = %s, want %s", tc.floorMultiple, tc.duration, got, tc.want)
			}
		})
	}
}

func TestCalculateTaxSoftensAboveKink(t *testing.T) {
	// 400 is priced as 300 once half of the excess over the kink is dropped.
	got := CalculateTax(400, 7*day)
	if want := wad(9, 100); got.Cmp(want) != 0 {
		t.Fatalf("grail tax = %s, want %s", got, want)
	}
	unsoftened := new(big.Int).Mul(big.NewInt(400*400), taxScale)
	if got.Cmp(unsoftened) >= 0 {
		t.Fatalf("expected softened tax below %s, got %s", unsoftened, got)
	}
}

func TestCalculateTaxMonotonic(t *testing.T) {
	prev := big.NewInt(-1)
	for fm := uint64(101); fm <= 1000; fm++ {
		tax := CalculateTax(fm, 30*day)
		if tax.Cmp(prev) < 0 {
			t.Fatalf("tax decreased at floor multiple %d", fm)
		}
		prev = tax
	}
	prev = big.NewInt(-1)
	for duration := uint64(day); duration <= 180*day; duration += day {
		tax := CalculateTax(150, duration)
		if tax.Cmp(prev) <= 0 {
			t.Fatalf("tax not increasing at duration %d", duration)
		}
		prev = tax
	}
}

func TestCalculateInterestRate(t *testing.T) {
	tests := []struct {
		name        string
		utilization *big.Int
		want        uint64
	}{
		{name: "idle", utilization: big.NewInt(0), want: 200},
		{name: "half way to kink", utilization: wad(4, 10), want: 500},
		{name: "kink", utilization: wad(8, 10), want: 800},
		{name: "steep region", utilization: wad(9, 10), want: 5400},
		{name: "full", utilization: new(big.Int).Set(WAD), want: 10_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateInterestRate(tc.utilization); got != tc.want {
				t.Fatalf("rate = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCalculateCompoundedFactor(t *testing.T) {
	unchanged := CalculateCompoundedFactor(WAD, wad(9, 10), 0)
	if unchanged.Cmp(WAD) != 0 {
		t.Fatalf("expected zero elapsed to keep the factor, got %s", unchanged)
	}

	yearly := CalculateCompoundedFactor(WAD, big.NewInt(0), SecondsPerYear)
	upper := wad(102, 100)
	lower := wad(10199, 10000)
	if yearly.Cmp(upper) > 0 || yearly.Cmp(lower) < 0 {
		t.Fatalf("expected ~1.02 after a year at 2%%, got %s", yearly)
	}

	busy := CalculateCompoundedFactor(WAD, wad(9, 10), SecondsPerYear)
	if busy.Cmp(yearly) <= 0 {
		t.Fatalf("expected higher utilisation to compound faster: %s <= %s", busy, yearly)
	}
}

func TestCompound(t *testing.T) {
	principal := wad(1, 2)
	a := Checkpoint{CompoundedFactor: new(big.Int).Set(WAD), Timestamp: 100}
	c := Checkpoint{CompoundedFactor: wad(105, 100), Timestamp: 150}
	b := Checkpoint{CompoundedFactor: wad(110, 100), Timestamp: 200}

	if got := Compound(principal, b, a); got.Cmp(principal) != 0 {
		t.Fatalf("expected backwards compound to return principal, got %s", got)
	}
	if got := Compound(principal, a, a); got.Cmp(principal) != 0 {
		t.Fatalf("expected same checkpoint to return principal, got %s", got)
	}
	direct := Compound(principal, a, b)
	if direct.Cmp(wad(55, 100)) != 0 {
		t.Fatalf("expected 0.55, got %s", direct)
	}
	stepped := Compound(Compound(principal, a, c), c, b)
	diff := new(big.Int).Sub(direct, stepped)
	if diff.CmpAbs(big.NewInt(10)) > 0 {
		t.Fatalf("compound not associative within rounding: direct=%s stepped=%s", direct, stepped)
	}
}

func TestDenominationScaling(t *testing.T) {
	if got := FloorUnit(0); got.Cmp(WAD) != 0 {
		t.Fatalf("unexpected floor unit %s", got)
	}
	want := new(big.Int).Mul(WAD, big.NewInt(1000))
	if got := FloorUnit(3); got.Cmp(want) != 0 {
		t.Fatalf("unexpected denominated floor unit %s", got)
	}
	if got := Denominate(wad(5, 100), 2); got.Cmp(wad(5, 1)) != 0 {
		t.Fatalf("unexpected denominated amount %s", got)
	}
	if got := FloorUnits(3, 0); got.Cmp(wad(3, 1)) != 0 {
		t.Fatalf("unexpected floor units %s", got)
	}
}
