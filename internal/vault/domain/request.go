package vault

import (
	"time"

	"cosmossdk.io/math"
)

// SettlementDelay is the fixed wait between an early-exit request and its settlement.
const SettlementDelay = 24 * time.Hour

// RequestStatus is derived from the terminal flags of a request.
type RequestStatus string

const (
	StatusOpen      RequestStatus = "open"
	StatusProcessed RequestStatus = "processed"
	StatusCancelled RequestStatus = "cancelled"
)

// Request is a queued early-exit redemption. Shares were burned when it was enqueued.
type Request struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner"`
	Receiver       string    `json:"receiver"`
	Shares         math.Uint `json:"shares"`
	Penalty        math.Uint `json:"penalty"`
	RequestTime    time.Time `json:"request_time"`
	SettlementDate time.Time `json:"settlement_date"`
	IsProcessed    bool      `json:"is_processed"`
	IsCancelled    bool      `json:"is_cancelled"`
	// Pieces are the owner's tranche pieces the request consumed, oldest first.
	Pieces []Tranche `json:"pieces,omitempty"`
}

// Status reports the request state.
func (r Request) Status() RequestStatus {
	switch {
	case r.IsProcessed:
		return StatusProcessed
	case r.IsCancelled:
		return StatusCancelled
	default:
		return StatusOpen
	}
}

// Open reports whether the request is neither processed nor cancelled.
func (r Request) Open() bool { return !r.IsProcessed && !r.IsCancelled }

// DueAt reports whether the request is open and its settlement date has passed at now.
func (r Request) DueAt(now time.Time) bool {
	return r.Open() && !now.Before(r.SettlementDate)
}

// Settlement is the payout of a processed request.
type Settlement struct {
	RequestID uint64
	Receiver  string
	Gross     math.Uint
	Net       math.Uint
	Penalty   math.Uint
}
