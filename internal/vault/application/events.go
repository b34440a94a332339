package application

import (
	"reflect"
	"time"

	"cosmossdk.io/math"

	vault "tranche-vault/internal/vault/domain"
)

// Deposited is emitted after underlying is taken in and shares minted.
type Deposited struct {
	AssetClass string    `json:"asset_class"`
	Depositor  string    `json:"depositor"`
	Receiver   string    `json:"receiver"`
	Assets     math.Uint `json:"assets"`
	Shares     math.Uint       `json:"shares"`
	Tranches   []vault.Tranche `json:"tranches"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Redeemed is emitted after a standard redemption pays out.
type Redeemed struct {
	AssetClass string    `json:"asset_class"`
	Owner      string    `json:"owner"`
	Receiver   string    `json:"receiver"`
	Shares     math.Uint `json:"shares"`
	Assets     math.Uint `json:"assets"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EarlyExitRequested is emitted when shares are burned into the redemption queue.
type EarlyExitRequested struct {
	AssetClass     string    `json:"asset_class"`
	RequestID      uint64    `json:"request_id"`
	Owner          string    `json:"owner"`
	Receiver       string    `json:"receiver"`
	Shares         math.Uint `json:"shares"`
	Gross          math.Uint `json:"gross"`
	Penalty        math.Uint `json:"penalty"`
	SettlementDate time.Time `json:"settlement_date"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RedemptionProcessed is emitted when a queued request settles.
type RedemptionProcessed struct {
	AssetClass       string    `json:"asset_class"`
	RequestID        uint64    `json:"request_id"`
	Receiver         string    `json:"receiver"`
	Gross            math.Uint `json:"gross"`
	Net              math.Uint `json:"net"`
	Penalty          math.Uint `json:"penalty"`
	PenaltyRecipient string    `json:"penalty_recipient"`
	ProcessedBy      string    `json:"processed_by"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// RedemptionCancelled is emitted when the owner cancels and shares are restored.
type RedemptionCancelled struct {
	AssetClass string    `json:"asset_class"`
	RequestID  uint64    `json:"request_id"`
	Owner      string    `json:"owner"`
	Shares     math.Uint       `json:"shares"`
	Tranches   []vault.Tranche `json:"tranches"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// SharesTransferred is emitted when tranches move between holders.
type SharesTransferred struct {
	AssetClass string    `json:"asset_class"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Shares     math.Uint `json:"shares"`
	Pieces     int       `json:"pieces"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FeesCollected is emitted after management and performance fees are paid.
type FeesCollected struct {
	AssetClass    string    `json:"asset_class"`
	Nav           math.Uint `json:"nav"`
	Management    math.Uint `json:"management"`
	Performance   math.Uint `json:"performance"`
	HighWaterMark math.Uint `json:"high_water_mark"`
	Elapsed       string    `json:"elapsed"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TreasurySwept is emitted after the treasury acknowledges a deployment.
type TreasurySwept struct {
	AssetClass   string    `json:"asset_class"`
	DeploymentID string    `json:"deployment_id"`
	Account      string    `json:"account"`
	Amount       math.Uint `json:"amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NavUpdated is emitted after an oracle update is stored.
type NavUpdated struct {
	AssetClass string    `json:"asset_class"`
	Previous   math.Uint `json:"previous"`
	Nav        math.Uint `json:"nav"`
	UpdatedBy  string    `json:"updated_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventSamples lists every event type for registry registration.
func EventSamples() []any {
	return []any{
		Deposited{},
		Redeemed{},
		EarlyExitRequested{},
		RedemptionProcessed{},
		RedemptionCancelled{},
		SharesTransferred{},
		FeesCollected{},
		TreasurySwept{},
		NavUpdated{},
	}
}

func eventName(event any) string {
	t := reflect.TypeOf(event)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
