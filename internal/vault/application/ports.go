package application

import (
	"context"
	"time"

	"cosmossdk.io/math"

	fees "tranche-vault/internal/fees/domain"
)

// Custody moves the underlying asset in and out of the vault account.
type Custody interface {
	TransferIn(ctx context.Context, from string, amount math.Uint) error
	TransferOut(ctx context.Context, to string, amount math.Uint) error
	BalanceOf(ctx context.Context) (math.Uint, error)
}

// EligibilityGate reports whether an address may hold or receive positions in an asset class.
type EligibilityGate interface {
	IsEligible(ctx context.Context, assetClass, address string) (bool, error)
}

// Deployment is a surplus transfer handed to the treasury.
type Deployment struct {
	ID         string    `json:"id"`
	AssetClass string    `json:"asset_class"`
	Account    string    `json:"account"`
	Amount     math.Uint `json:"amount"`
	At         time.Time `json:"at"`
}

// TreasurySink accepts surplus balance and keeps its own books.
type TreasurySink interface {
	Account() string
	Receive(ctx context.Context, deployment Deployment) error
}

// NavReader supplies the reported valuation of an asset class.
type NavReader interface {
	Nav(assetClass string) (math.Uint, error)
}

// FeeResolver resolves rates and recipients per asset class.
type FeeResolver interface {
	ResolveFees(assetClass string) fees.Rates
	ResolveRecipients(assetClass string) fees.Recipients
	PenaltyFor(assetClass string, amount math.Uint) math.Uint
	ManagementFeeFor(assetClass string, total math.Uint, elapsed time.Duration) (math.Uint, error)
	PerformanceFeeFor(assetClass string, gain math.Uint) math.Uint
}

// EventPublisher emits committed domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
