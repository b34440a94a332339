package access

import "strings"

// Capability is a named permission carried by a caller.
type Capability string

const (
	// CapNavAdmin registers asset classes and manages their thresholds and updater sets.
	CapNavAdmin Capability = "nav.admin"
	// CapNavUpdater may update the NAV of any active asset class.
	CapNavUpdater Capability = "nav.updater"
	// CapFeesAdmin writes the global and per-asset-class fee schedule.
	CapFeesAdmin Capability = "fees.admin"
	// CapVaultOperator settles queued redemptions, collects fees and sweeps to treasury.
	CapVaultOperator Capability = "vault.operator"
	// CapVaultAdmin manages vault-level configuration.
	CapVaultAdmin Capability = "vault.admin"
)

// ParseCapability validates a capability string.
func ParseCapability(value string) (Capability, bool) {
	switch Capability(strings.TrimSpace(value)) {
	case CapNavAdmin, CapNavUpdater, CapFeesAdmin, CapVaultOperator, CapVaultAdmin:
		return Capability(strings.TrimSpace(value)), true
	default:
		return "", false
	}
}

// Caller is the explicit capability token passed into every mutator.
type Caller struct {
	Address      string
	capabilities map[Capability]struct{}
}

// NewCaller builds a caller with the given capabilities.
func NewCaller(address string, caps ...Capability) Caller {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return Caller{Address: address, capabilities: set}
}

// Has reports whether the caller holds capability c.
func (c Caller) Has(capability Capability) bool {
	if c.capabilities == nil {
		return false
	}
	_, ok := c.capabilities[capability]
	return ok
}

// Capabilities returns the caller's capabilities.
func (c Caller) Capabilities() []Capability {
	out := make([]Capability, 0, len(c.capabilities))
	for capability := range c.capabilities {
		out = append(out, capability)
	}
	return out
}

// IsZero reports whether the caller carries no address.
func (c Caller) IsZero() bool { return c.Address == "" }
