package nav

import (
	"sort"
	"time"

	"cosmossdk.io/math"
)

// MaxChangeThresholdBps caps the change guard at a full 100% move.
const MaxChangeThresholdBps uint32 = 10000

// Record is the valuation record for one asset class.
type Record struct {
	AssetClass         string        `json:"asset_class"`
	Nav                math.Uint     `json:"nav"`
	LastUpdated        time.Time     `json:"last_updated"`
	ChangeThresholdBps uint32        `json:"change_threshold_bps"`
	StalenessThreshold time.Duration `json:"staleness_threshold"`
	Active             bool          `json:"active"`
	Updaters           []string      `json:"updaters"`
}

// HasNav reports whether a valuation was ever recorded.
func (r Record) HasNav() bool { return !r.Nav.IsZero() }

// FreshAt reports whether the record is within its staleness window at now.
// A record that never received a NAV is never fresh.
func (r Record) FreshAt(now time.Time) bool {
	if r.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(r.LastUpdated) <= r.StalenessThreshold
}

// IsUpdater reports whether address is in the record's updater set.
func (r Record) IsUpdater(address string) bool {
	for _, updater := range r.Updaters {
		if updater == address {
			return true
		}
	}
	return false
}

func (r Record) clone() Record {
	r.Updaters = append([]string(nil), r.Updaters...)
	return r
}

func (r *Record) addUpdater(address string) bool {
	if r.IsUpdater(address) {
		return false
	}
	r.Updaters = append(r.Updaters, address)
	sort.Strings(r.Updaters)
	return true
}

func (r *Record) removeUpdater(address string) bool {
	for i, updater := range r.Updaters {
		if updater == address {
			r.Updaters = append(r.Updaters[:i], r.Updaters[i+1:]...)
			return true
		}
	}
	return false
}

// exceedsThreshold applies floor(|next-prev|*10000/prev) > thresholdBps.
func exceedsThreshold(prev, next math.Uint, thresholdBps uint32) bool {
	if prev.IsZero() {
		return false
	}
	var diff math.Uint
	if next.GT(prev) {
		diff = next.Sub(prev)
	} else {
		diff = prev.Sub(next)
	}
	moveBps := diff.MulUint64(10000).Quo(prev)
	return moveBps.GT(math.NewUint(uint64(thresholdBps)))
}
