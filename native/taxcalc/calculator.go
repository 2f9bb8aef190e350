package taxcalc

import "math/big"

const (
	// FloorMultiplePrecision expresses a 1.00x floor multiple.
	FloorMultiplePrecision = 100
	// FloorMultipleKink is the premium above which half of the excess is
	// ignored when pricing tax.
	FloorMultipleKink = 200
	// TaxBasePeriod is the duration that the tax curve is normalised to.
	TaxBasePeriod = 7 * 24 * 60 * 60
	// SecondsPerYear converts annual rates into per second rates.
	SecondsPerYear = 365 * 24 * 60 * 60

	// RatePrecision is the denominator of rates returned by
	// CalculateInterestRate: 10_000 is 100.00% a year.
	RatePrecision = 10_000
	rateAtZero    = 200
	rateAtKink    = 800
	rateAtFull    = 10_000
)

var (
	// UtilizationKink is the 80% utilisation boundary of the interest curve.
	UtilizationKink = mustBigInt("800000000000000000")

	taxScale       = mustBigInt("1000000000000")    // 1e12
	steepRateScale = mustBigInt("10000000000000000") // 1e16
)

// Checkpoint is a snapshot of a collection's cumulative interest factor.
type Checkpoint struct {
	CompoundedFactor *big.Int
	Timestamp        uint64
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	return &Checkpoint{CompoundedFactor: cloneBigInt(c.CompoundedFactor), Timestamp: c.Timestamp}
}

// CalculateTax returns the WAD tax owed for holding a listing at floorMultiple
// for duration seconds. Tax grows with the square of the premium and linearly
// with time; premiums above the kink only count half of their excess.
func CalculateTax(floorMultiple, duration uint64) *big.Int {
	if floorMultiple > FloorMultipleKink {
		floorMultiple = FloorMultipleKink + (floorMultiple-FloorMultipleKink)/2
	}
	fm := new(big.Int).SetUint64(floorMultiple)
	tax := new(big.Int).Mul(fm, fm)
	tax.Mul(tax, taxScale)
	tax.Mul(tax, new(big.Int).SetUint64(duration))
	return tax.Quo(tax, big.NewInt(TaxBasePeriod))
}

// CalculateInterestRate maps a WAD utilisation ratio onto the annual protected
// listing rate with two decimals of precision (200 == 2.00%).
//
// Up to the 80% kink the rate rises from 2% to 8%; above it the rate climbs to
// 100% at full utilisation.
func CalculateInterestRate(utilization *big.Int) uint64 {
	if utilization == nil || utilization.Sign() <= 0 {
		return rateAtZero
	}
	if utilization.Cmp(UtilizationKink) <= 0 {
		slope := new(big.Int).Mul(utilization, big.NewInt(rateAtKink-rateAtZero))
		slope.Quo(slope, UtilizationKink)
		return rateAtZero + slope.Uint64()
	}
	excess := new(big.Int).Sub(utilization, UtilizationKink)
	excess.Mul(excess, big.NewInt((rateAtFull-rateAtKink)/100))
	// (1 - kink) is 0.2, so scaling by 5 spreads the excess over the full range.
	excess.Mul(excess, big.NewInt(5))
	excess.Quo(excess, steepRateScale)
	if !excess.IsUint64() {
		return ^uint64(0)
	}
	return rateAtKink + excess.Uint64()
}

// CalculateCompoundedFactor advances previous by elapsed seconds at the rate
// implied by utilization. The per second rate is applied linearly to the
// running factor.
func CalculateCompoundedFactor(previous, utilization *big.Int, elapsed uint64) *big.Int {
	factor := cloneBigInt(previous)
	if elapsed == 0 || factor.Sign() == 0 {
		return factor
	}
	rate := new(big.Int).SetUint64(CalculateInterestRate(utilization))
	perSecond := new(big.Int).Mul(rate, WAD)
	perSecond.Quo(perSecond, big.NewInt(SecondsPerYear))

	growth := new(big.Int).Mul(perSecond, new(big.Int).SetUint64(elapsed))
	growth.Quo(growth, big.NewInt(RatePrecision))
	growth.Add(growth, WAD)

	factor.Mul(factor, growth)
	return factor.Quo(factor, WAD)
}

// Compound grows principal from the open checkpoint to the current one. When
// the open checkpoint is not strictly older the principal is returned as is.
func Compound(principal *big.Int, open, current Checkpoint) *big.Int {
	if open.Timestamp >= current.Timestamp {
		return cloneBigInt(principal)
	}
	if open.CompoundedFactor == nil || open.CompoundedFactor.Sign() == 0 {
		return cloneBigInt(principal)
	}
	ratio := new(big.Int).Mul(cloneBigInt(current.CompoundedFactor), WAD)
	ratio.Quo(ratio, open.CompoundedFactor)
	amount := new(big.Int).Mul(cloneBigInt(principal), ratio)
	return amount.Quo(amount, WAD)
}
