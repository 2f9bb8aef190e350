package taxcalc

import "math/big"

var (
	// WAD is the 1e18 precision shared by floor units, utilisation ratios and
	// compounded factors before a collection's denomination is applied.
	WAD = mustBigInt("1000000000000000000")

	ten = big.NewInt(10)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// DenominationMultiplier returns 10^denomination.
func DenominationMultiplier(denomination uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(denomination)), nil)
}

// FloorUnit returns the raw token amount representing exactly one floor unit
// for a collection with the given denomination.
func FloorUnit(denomination uint8) *big.Int {
	return new(big.Int).Mul(WAD, DenominationMultiplier(denomination))
}

// Denominate scales a WAD based amount into the collection's raw token units.
func Denominate(wad *big.Int, denomination uint8) *big.Int {
	if wad == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(wad, DenominationMultiplier(denomination))
}

// FloorUnits returns count floor units in raw token amounts.
func FloorUnits(count uint64, denomination uint8) *big.Int {
	return new(big.Int).Mul(FloorUnit(denomination), new(big.Int).SetUint64(count))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
