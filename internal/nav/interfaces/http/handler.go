package http

import (
	"errors"
	"net/http"
	"time"

	"cosmossdk.io/math"
	"github.com/gorilla/mux"

	apihttp "tranche-vault/internal/api/http"
	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	nav "tranche-vault/internal/nav/domain"
)

// Handler serves NAV oracle endpoints.
type Handler struct {
	oracle  *nav.Oracle
	auditor apihttp.Auditor
	now     func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(oracle *nav.Oracle, auditor apihttp.Auditor) (*Handler, error) {
	if oracle == nil {
		return nil, errors.New("nav handler: nil oracle")
	}
	return &Handler{oracle: oracle, auditor: auditor, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Register mounts the NAV routes on router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/nav", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/nav", h.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/nav/{class}", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/nav/{class}", h.handleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/nav/{class}/thresholds", h.handleThresholds).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/nav/{class}/active", h.handleActive).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/nav/{class}/updaters", h.handleAddUpdater).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/nav/{class}/updaters/{address}", h.handleRemoveUpdater).Methods(http.MethodDelete)
}

type recordResponse struct {
	AssetClass         string    `json:"asset_class"`
	Nav                math.Uint `json:"nav"`
	LastUpdated        time.Time `json:"last_updated"`
	ChangeThresholdBps uint32    `json:"change_threshold_bps"`
	StalenessSeconds   int64     `json:"staleness_seconds"`
	Active             bool      `json:"active"`
	Fresh              bool      `json:"fresh"`
	Updaters           []string  `json:"updaters"`
}

func (h *Handler) toResponse(record nav.Record) recordResponse {
	updaters := record.Updaters
	if updaters == nil {
		updaters = []string{}
	}
	return recordResponse{
		AssetClass:         record.AssetClass,
		Nav:                record.Nav,
		LastUpdated:        record.LastUpdated,
		ChangeThresholdBps: record.ChangeThresholdBps,
		StalenessSeconds:   int64(record.StalenessThreshold / time.Second),
		Active:             record.Active,
		Fresh:              record.FreshAt(h.now()),
		Updaters:           updaters,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records := h.oracle.List()
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, h.toResponse(record))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	record, ok := h.oracle.Get(class)
	if !ok {
		apihttp.WriteError(w, nav.ErrUnknownAssetClass.Wrapf("asset class %s", class))
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, h.toResponse(record))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetClass         string   `json:"asset_class"`
		ChangeThresholdBps uint32   `json:"change_threshold_bps"`
		StalenessSeconds   int64    `json:"staleness_seconds"`
		Updaters           []string `json:"updaters"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	record, err := h.oracle.Register(r.Context(), auth.CallerFromContext(r.Context()), nav.RegisterParams{
		AssetClass:         req.AssetClass,
		ChangeThresholdBps: req.ChangeThresholdBps,
		StalenessThreshold: time.Duration(req.StalenessSeconds) * time.Second,
		Updaters:           req.Updaters,
	})
	h.audit(r, "nav.register", req.AssetClass, err, map[string]any{
		"change_threshold_bps": req.ChangeThresholdBps,
		"staleness_seconds":    req.StalenessSeconds,
	})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, h.toResponse(record))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	var req struct {
		Nav string `json:"nav"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	value, err := apihttp.ParseAmount("nav", req.Nav)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	record, err := h.oracle.UpdateNav(r.Context(), auth.CallerFromContext(r.Context()), class, value)
	h.audit(r, "nav.update", class, err, map[string]any{"nav": req.Nav})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, h.toResponse(record))
}

func (h *Handler) handleThresholds(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	var req struct {
		ChangeThresholdBps uint32 `json:"change_threshold_bps"`
		StalenessSeconds   int64  `json:"staleness_seconds"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	err := h.oracle.SetThresholds(r.Context(), auth.CallerFromContext(r.Context()), class,
		req.ChangeThresholdBps, time.Duration(req.StalenessSeconds)*time.Second)
	h.audit(r, "nav.thresholds.set", class, err, map[string]any{
		"change_threshold_bps": req.ChangeThresholdBps,
		"staleness_seconds":    req.StalenessSeconds,
	})
	h.respondRecord(w, class, err)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	var req struct {
		Active bool `json:"active"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	err := h.oracle.SetActive(r.Context(), auth.CallerFromContext(r.Context()), class, req.Active)
	h.audit(r, "nav.active.set", class, err, map[string]any{"active": req.Active})
	h.respondRecord(w, class, err)
}

func (h *Handler) handleAddUpdater(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	var req struct {
		Address string `json:"address"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	err := h.oracle.AddUpdater(r.Context(), auth.CallerFromContext(r.Context()), class, req.Address)
	h.audit(r, "nav.updater.add", class, err, map[string]any{"address": req.Address})
	h.respondRecord(w, class, err)
}

func (h *Handler) handleRemoveUpdater(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	class, address := vars["class"], vars["address"]
	err := h.oracle.RemoveUpdater(r.Context(), auth.CallerFromContext(r.Context()), class, address)
	h.audit(r, "nav.updater.remove", class, err, map[string]any{"address": address})
	h.respondRecord(w, class, err)
}

func (h *Handler) respondRecord(w http.ResponseWriter, class string, err error) {
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	record, _ := h.oracle.Get(class)
	apihttp.WriteJSON(w, http.StatusOK, h.toResponse(record))
}

func (h *Handler) audit(r *http.Request, action, class string, err error, metadata map[string]any) {
	h.auditor.Record(r, audit.Entry{
		Action:       action,
		AssetClass:   class,
		ResourceType: "nav_record",
		ResourceID:   class,
	}, err, metadata)
}
