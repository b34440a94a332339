package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

var operatorActions = []string{"/process", "/process-batch", "/collect-fees", "/sweep"}

// RequiredRole resolves required role for the request.
// Capability checks in the domain still apply; the role is a coarse gate.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method
	read := method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions

	switch {
	case strings.HasPrefix(path, "/api/v1/vaults/"):
		if read {
			return RoleHolder, true
		}
		for _, action := range operatorActions {
			if strings.HasSuffix(path, action) {
				return RoleOperator, true
			}
		}
		return RoleHolder, true
	case path == "/api/v1/nav":
		if read {
			return RoleHolder, true
		}
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/nav/"):
		if read || method == http.MethodPut && strings.Count(strings.TrimPrefix(path, "/api/v1/nav/"), "/") == 0 {
			return RoleHolder, true
		}
		return RoleAdmin, true
	case path == "/api/v1/fees" || strings.HasPrefix(path, "/api/v1/fees/"):
		if read {
			return RoleHolder, true
		}
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/exports/"), strings.HasPrefix(path, "/api/v1/events/"):
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/eligibility"):
		if read {
			return RoleOperator, true
		}
		return RoleAdmin, true
	}

	if strings.HasPrefix(path, "/api/") {
		if read {
			return RoleHolder, true
		}
		return RoleOperator, true
	}
	return "", false
}
