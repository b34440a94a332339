package failure

import (
	"errors"
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
)

// Kind groups registered errors into rejection categories.
type Kind string

const (
	// KindValidation covers zero amounts, empty addresses and malformed input.
	KindValidation Kind = "validation"
	// KindAuthorization covers missing capabilities, non-owners and ineligible parties.
	KindAuthorization Kind = "authorization"
	// KindInsufficient covers insufficient shares, funds or liquidity.
	KindInsufficient Kind = "insufficient"
	// KindNotFound covers references to records that were never created.
	KindNotFound Kind = "not_found"
	// KindState covers stale or out-of-bound state such as not-yet-due or already-processed.
	KindState Kind = "state"
	// KindInternal is anything unregistered.
	KindInternal Kind = "internal"
)

var (
	mu    sync.RWMutex
	kinds = make(map[string]Kind)
)

// Register registers a coded error under codespace and records its kind.
func Register(codespace string, code uint32, description string, kind Kind) *errorsmod.Error {
	err := errorsmod.Register(codespace, code, description)
	mu.Lock()
	kinds[key(codespace, code)] = kind
	mu.Unlock()
	return err
}

// KindOf classifies err by the first registered error in its chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var coded *errorsmod.Error
	if !errors.As(err, &coded) {
		return KindInternal
	}
	mu.RLock()
	kind, ok := kinds[key(coded.Codespace(), coded.ABCICode())]
	mu.RUnlock()
	if !ok {
		return KindInternal
	}
	return kind
}

// Code returns "codespace/code" for a registered error, or "" when err is unregistered.
func Code(err error) string {
	var coded *errorsmod.Error
	if !errors.As(err, &coded) {
		return ""
	}
	return key(coded.Codespace(), coded.ABCICode())
}

func key(codespace string, code uint32) string {
	return fmt.Sprintf("%s/%d", codespace, code)
}
