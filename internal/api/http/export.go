package apihttp

import (
	"encoding/csv"
	"net/http"
	"sort"
	"strconv"

	vault "tranche-vault/internal/vault/domain"
)

// RequestSource exposes the redemption queue of one vault.
type RequestSource interface {
	AssetClass() string
	Snapshot() vault.Snapshot
}

// ExportRequestsCSVHandler serves redemption request CSV exports across vaults.
type ExportRequestsCSVHandler struct {
	sources []RequestSource
}

// NewExportRequestsCSVHandler constructs an ExportRequestsCSVHandler.
func NewExportRequestsCSVHandler(sources ...RequestSource) *ExportRequestsCSVHandler {
	sorted := append([]RequestSource(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AssetClass() < sorted[j].AssetClass() })
	return &ExportRequestsCSVHandler{sources: sorted}
}

// ServeHTTP handles GET /api/v1/exports/requests.csv.
// Optional filters: asset_class, owner, status (open|processed|cancelled).
func (h *ExportRequestsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || len(h.sources) == 0 {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	assetClass := query.Get("asset_class")
	owner := query.Get("owner")
	status := vault.RequestStatus(query.Get("status"))
	switch status {
	case "", vault.StatusOpen, vault.StatusProcessed, vault.StatusCancelled:
	default:
		WriteError(w, ErrInvalidQuery.Wrap("status must be open, processed or cancelled"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"asset_class",
		"id",
		"owner",
		"receiver",
		"shares",
		"penalty",
		"status",
		"request_time",
		"settlement_date",
	})
	for _, source := range h.sources {
		if assetClass != "" && source.AssetClass() != assetClass {
			continue
		}
		for _, request := range source.Snapshot().Requests {
			if owner != "" && request.Owner != owner {
				continue
			}
			if status != "" && request.Status() != status {
				continue
			}
			_ = writer.Write([]string{
				source.AssetClass(),
				strconv.FormatUint(request.ID, 10),
				request.Owner,
				request.Receiver,
				request.Shares.String(),
				request.Penalty.String(),
				string(request.Status()),
				formatTime(request.RequestTime),
				formatTime(request.SettlementDate),
			})
		}
	}
	writer.Flush()
}
