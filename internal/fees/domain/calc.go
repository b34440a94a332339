package fees

import (
	"time"

	"cosmossdk.io/math"
)

// Year is the pro-ration period for management fees.
const Year = 365 * 24 * time.Hour

// ManagementFeeDue returns total*bps*elapsed/(year*10000), floored.
// Elapsed and year are measured in whole seconds.
func ManagementFeeDue(total math.Uint, bps uint32, elapsed, year time.Duration) (math.Uint, error) {
	yearSeconds := uint64(year / time.Second)
	if yearSeconds == 0 {
		return math.ZeroUint(), ErrInvalidYear
	}
	if elapsed <= 0 || bps == 0 || total.IsZero() {
		return math.ZeroUint(), nil
	}
	elapsedSeconds := uint64(elapsed / time.Second)
	numerator := total.MulUint64(uint64(bps)).MulUint64(elapsedSeconds)
	return numerator.Quo(math.NewUint(yearSeconds).MulUint64(BpsDenominator)), nil
}

// PerformanceFeeDue returns gain*bps/10000, floored.
func PerformanceFeeDue(gain math.Uint, bps uint32) math.Uint {
	return applyBps(gain, bps)
}

// PenaltyDue returns amount*bps/10000, floored.
func PenaltyDue(amount math.Uint, bps uint32) math.Uint {
	return applyBps(amount, bps)
}

func applyBps(amount math.Uint, bps uint32) math.Uint {
	if bps == 0 || amount.IsZero() {
		return math.ZeroUint()
	}
	return amount.MulUint64(uint64(bps)).QuoUint64(BpsDenominator)
}

// PenaltyFor resolves the penalty rate for assetClass and applies it to amount.
func (s *Schedule) PenaltyFor(assetClass string, amount math.Uint) math.Uint {
	return PenaltyDue(amount, s.ResolveFees(assetClass).PenaltyBps)
}

// ManagementFeeFor resolves the management rate for assetClass and pro-rates it over elapsed.
func (s *Schedule) ManagementFeeFor(assetClass string, total math.Uint, elapsed time.Duration) (math.Uint, error) {
	return ManagementFeeDue(total, s.ResolveFees(assetClass).ManagementBps, elapsed, Year)
}

// PerformanceFeeFor resolves the performance rate for assetClass and applies it to gain.
func (s *Schedule) PerformanceFeeFor(assetClass string, gain math.Uint) math.Uint {
	return PerformanceFeeDue(gain, s.ResolveFees(assetClass).PerformanceBps)
}
