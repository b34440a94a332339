package nav

import (
	"context"
	"errors"
	"sort"
	"time"

	"cosmossdk.io/math"
	"github.com/sasha-s/go-deadlock"

	"tranche-vault/internal/access"
)

// Repository persists NAV records.
type Repository interface {
	Save(ctx context.Context, record Record) error
	LoadAll(ctx context.Context) ([]Record, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Updated is emitted after a NAV update is stored.
type Updated struct {
	AssetClass string
	Previous   math.Uint
	Nav        math.Uint
	UpdatedBy  string
	At         time.Time
}

// Listener observes stored NAV updates.
type Listener interface {
	NavUpdated(ctx context.Context, update Updated)
}

// RegisterParams describes a new asset class.
type RegisterParams struct {
	AssetClass         string
	ChangeThresholdBps uint32
	StalenessThreshold time.Duration
	Updaters           []string
}

// Oracle stores one valuation record per asset class.
type Oracle struct {
	mu       deadlock.RWMutex
	records  map[string]Record
	repo     Repository
	clock    Clock
	listener Listener
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(o *Oracle) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithListener registers a listener for stored updates.
func WithListener(listener Listener) Option {
	return func(o *Oracle) {
		o.listener = listener
	}
}

// NewOracle constructs an oracle. A nil repository keeps records in memory only.
func NewOracle(repo Repository, opts ...Option) *Oracle {
	o := &Oracle{
		records: make(map[string]Record),
		repo:    repo,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Restore loads all persisted records.
func (o *Oracle) Restore(ctx context.Context) error {
	if o == nil {
		return errors.New("nav oracle: nil oracle")
	}
	if o.repo == nil {
		return nil
	}
	records, err := o.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, record := range records {
		if record.Nav == (math.Uint{}) {
			record.Nav = math.ZeroUint()
		}
		o.records[record.AssetClass] = record.clone()
	}
	return nil
}

// Register creates the record for a new asset class. The class starts active with no NAV.
func (o *Oracle) Register(ctx context.Context, caller access.Caller, params RegisterParams) (Record, error) {
	if !caller.Has(access.CapNavAdmin) {
		return Record{}, ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	if params.AssetClass == "" {
		return Record{}, ErrEmptyAssetClass
	}
	if err := validateThresholds(params.ChangeThresholdBps, params.StalenessThreshold); err != nil {
		return Record{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.records[params.AssetClass]; ok {
		return Record{}, ErrAlreadyRegistered.Wrapf("asset class %s", params.AssetClass)
	}
	record := Record{
		AssetClass:         params.AssetClass,
		Nav:                math.ZeroUint(),
		ChangeThresholdBps: params.ChangeThresholdBps,
		StalenessThreshold: params.StalenessThreshold,
		Active:             true,
	}
	for _, updater := range params.Updaters {
		if updater == "" {
			return Record{}, ErrEmptyAddress
		}
		record.addUpdater(updater)
	}
	if err := o.store(ctx, record); err != nil {
		return Record{}, err
	}
	return record.clone(), nil
}

// UpdateNav records a new valuation. The first update of a class skips the change guard.
func (o *Oracle) UpdateNav(ctx context.Context, caller access.Caller, assetClass string, nav math.Uint) (Record, error) {
	if nav == (math.Uint{}) || nav.IsZero() {
		return Record{}, ErrZeroNav
	}

	o.mu.Lock()
	record, ok := o.records[assetClass]
	if !ok {
		o.mu.Unlock()
		return Record{}, ErrUnknownAssetClass.Wrapf("asset class %s", assetClass)
	}
	if !caller.Has(access.CapNavUpdater) && !record.IsUpdater(caller.Address) {
		o.mu.Unlock()
		return Record{}, ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	if !record.Active {
		o.mu.Unlock()
		return Record{}, ErrAssetClassInactive.Wrapf("asset class %s", assetClass)
	}
	if exceedsThreshold(record.Nav, nav, record.ChangeThresholdBps) {
		o.mu.Unlock()
		return Record{}, ErrChangeExceedsThreshold.Wrapf("asset class %s: %s -> %s (threshold %d bps)",
			assetClass, record.Nav, nav, record.ChangeThresholdBps)
	}

	previous := record.Nav
	record = record.clone()
	record.Nav = nav
	record.LastUpdated = o.clock.Now()
	if err := o.store(ctx, record); err != nil {
		o.mu.Unlock()
		return Record{}, err
	}
	listener := o.listener
	o.mu.Unlock()

	if listener != nil {
		listener.NavUpdated(ctx, Updated{
			AssetClass: assetClass,
			Previous:   previous,
			Nav:        nav,
			UpdatedBy:  caller.Address,
			At:         record.LastUpdated,
		})
	}
	return record.clone(), nil
}

// SetActive toggles whether the class accepts NAV updates.
func (o *Oracle) SetActive(ctx context.Context, caller access.Caller, assetClass string, active bool) error {
	return o.mutate(ctx, caller, assetClass, func(record *Record) error {
		record.Active = active
		return nil
	})
}

// SetThresholds replaces the change guard and staleness window.
func (o *Oracle) SetThresholds(ctx context.Context, caller access.Caller, assetClass string, changeBps uint32, staleness time.Duration) error {
	if err := validateThresholds(changeBps, staleness); err != nil {
		return err
	}
	return o.mutate(ctx, caller, assetClass, func(record *Record) error {
		record.ChangeThresholdBps = changeBps
		record.StalenessThreshold = staleness
		return nil
	})
}

// AddUpdater grants address permission to update the class NAV.
func (o *Oracle) AddUpdater(ctx context.Context, caller access.Caller, assetClass, address string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	return o.mutate(ctx, caller, assetClass, func(record *Record) error {
		record.addUpdater(address)
		return nil
	})
}

// RemoveUpdater revokes address from the class updater set.
func (o *Oracle) RemoveUpdater(ctx context.Context, caller access.Caller, assetClass, address string) error {
	if address == "" {
		return ErrEmptyAddress
	}
	return o.mutate(ctx, caller, assetClass, func(record *Record) error {
		record.removeUpdater(address)
		return nil
	})
}

func (o *Oracle) mutate(ctx context.Context, caller access.Caller, assetClass string, apply func(*Record) error) error {
	if !caller.Has(access.CapNavAdmin) {
		return ErrUnauthorized.Wrapf("caller %s", caller.Address)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	record, ok := o.records[assetClass]
	if !ok {
		return ErrUnknownAssetClass.Wrapf("asset class %s", assetClass)
	}
	record = record.clone()
	if err := apply(&record); err != nil {
		return err
	}
	return o.store(ctx, record)
}

// store persists then publishes record in memory. Callers hold o.mu.
func (o *Oracle) store(ctx context.Context, record Record) error {
	if o.repo != nil {
		if err := o.repo.Save(ctx, record); err != nil {
			return err
		}
	}
	o.records[record.AssetClass] = record
	return nil
}

// Nav returns the current valuation of assetClass. Zero means no NAV was ever set.
func (o *Oracle) Nav(assetClass string) (math.Uint, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	record, ok := o.records[assetClass]
	if !ok {
		return math.ZeroUint(), ErrUnknownAssetClass.Wrapf("asset class %s", assetClass)
	}
	return record.Nav, nil
}

// IsFresh reports whether the class NAV is inside its staleness window now.
func (o *Oracle) IsFresh(assetClass string) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	record, ok := o.records[assetClass]
	if !ok {
		return false, ErrUnknownAssetClass.Wrapf("asset class %s", assetClass)
	}
	return record.FreshAt(o.clock.Now()), nil
}

// Get returns a copy of the record for assetClass.
func (o *Oracle) Get(assetClass string) (Record, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	record, ok := o.records[assetClass]
	if !ok {
		return Record{}, false
	}
	return record.clone(), true
}

// List returns all records ordered by asset class.
func (o *Oracle) List() []Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Record, 0, len(o.records))
	for _, record := range o.records {
		out = append(out, record.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetClass < out[j].AssetClass })
	return out
}

func validateThresholds(changeBps uint32, staleness time.Duration) error {
	if changeBps > MaxChangeThresholdBps {
		return ErrInvalidThreshold.Wrapf("change threshold %d bps", changeBps)
	}
	if staleness <= 0 {
		return ErrInvalidThreshold.Wrapf("staleness %s", staleness)
	}
	return nil
}
