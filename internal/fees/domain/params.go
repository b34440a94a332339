package fees

const (
	// MaxManagementFeeBps bounds the management rate.
	MaxManagementFeeBps uint32 = 5000
	// MaxPerformanceFeeBps bounds the performance rate.
	MaxPerformanceFeeBps uint32 = 5000
	// MaxPenaltyBps bounds the early-exit penalty rate.
	MaxPenaltyBps uint32 = 10000
	// BpsDenominator is one whole in basis points.
	BpsDenominator uint64 = 10000
)

// Rates are the three resolved fee rates in basis points.
type Rates struct {
	ManagementBps  uint32 `json:"management_bps" yaml:"management_bps"`
	PerformanceBps uint32 `json:"performance_bps" yaml:"performance_bps"`
	PenaltyBps     uint32 `json:"penalty_bps" yaml:"penalty_bps"`
}

// Recipients are the addresses receiving each fee component.
type Recipients struct {
	Management  string `json:"management" yaml:"management"`
	Performance string `json:"performance" yaml:"performance"`
	Penalty     string `json:"penalty" yaml:"penalty"`
}

// Params is a fee record, either global or for one asset class.
type Params struct {
	Rates      Rates      `json:"rates" yaml:"rates"`
	Recipients Recipients `json:"recipients" yaml:"recipients"`
	IsSet      bool       `json:"is_set" yaml:"-"`
}

// Validate enforces rate bounds.
func (r Rates) Validate() error {
	if r.ManagementBps > MaxManagementFeeBps {
		return ErrFeeTooHigh.Wrapf("management %d > %d", r.ManagementBps, MaxManagementFeeBps)
	}
	if r.PerformanceBps > MaxPerformanceFeeBps {
		return ErrFeeTooHigh.Wrapf("performance %d > %d", r.PerformanceBps, MaxPerformanceFeeBps)
	}
	if r.PenaltyBps > MaxPenaltyBps {
		return ErrFeeTooHigh.Wrapf("penalty %d > %d", r.PenaltyBps, MaxPenaltyBps)
	}
	return nil
}

func (r Recipients) complete() error {
	if r.Management == "" {
		return ErrEmptyRecipient.Wrap("management")
	}
	if r.Performance == "" {
		return ErrEmptyRecipient.Wrap("performance")
	}
	if r.Penalty == "" {
		return ErrEmptyRecipient.Wrap("penalty")
	}
	return nil
}

// inherit fills empty recipients from base.
func (r Recipients) inherit(base Recipients) Recipients {
	if r.Management == "" {
		r.Management = base.Management
	}
	if r.Performance == "" {
		r.Performance = base.Performance
	}
	if r.Penalty == "" {
		r.Penalty = base.Penalty
	}
	return r
}
