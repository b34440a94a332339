package apihttp

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
)

// Auditor records API actions with the caller identity taken from the request.
type Auditor struct {
	log    audit.Logger
	logger *zap.Logger
}

// NewAuditor constructs an Auditor. A nil log disables auditing.
func NewAuditor(log audit.Logger, logger *zap.Logger) Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Auditor{log: log, logger: logger}
}

// Record writes one entry. A non-nil opErr marks the entry rejected and is kept in metadata.
func (a Auditor) Record(r *http.Request, entry audit.Entry, opErr error, metadata map[string]any) {
	if a.log == nil {
		return
	}
	entry.Result = "success"
	if opErr != nil {
		entry.Result = "rejected"
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["error"] = opErr.Error()
	}
	if metadata != nil {
		entry.Metadata, _ = json.Marshal(metadata)
		entry.PayloadDigest = audit.DigestJSON(entry.Metadata)
	}
	entry.Actor = auth.SubjectFromContext(r.Context())
	entry.Role = string(auth.RoleFromContext(r.Context()))
	entry.IP = audit.ClientIP(r)
	entry.UserAgent = r.UserAgent()
	if err := a.log.Log(r.Context(), entry); err != nil {
		a.logger.Warn("audit log failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
