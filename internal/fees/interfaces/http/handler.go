package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	apihttp "tranche-vault/internal/api/http"
	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	fees "tranche-vault/internal/fees/domain"
)

// Handler serves fee schedule endpoints.
type Handler struct {
	schedule *fees.Schedule
	auditor  apihttp.Auditor
}

// NewHandler constructs a Handler.
func NewHandler(schedule *fees.Schedule, auditor apihttp.Auditor) (*Handler, error) {
	if schedule == nil {
		return nil, errors.New("fees handler: nil schedule")
	}
	return &Handler{schedule: schedule, auditor: auditor}, nil
}

// Register mounts the fee routes on router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/fees", h.handleGetGlobal).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/fees", h.handleSetGlobal).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/fees/{class}", h.handleGetClass).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/fees/{class}", h.handleSetClass).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/fees/{class}", h.handleClearClass).Methods(http.MethodDelete)
}

type classResponse struct {
	AssetClass string          `json:"asset_class"`
	Override   *fees.Params    `json:"override,omitempty"`
	Rates      fees.Rates      `json:"rates"`
	Recipients fees.Recipients `json:"recipients"`
}

func (h *Handler) classView(class string) classResponse {
	resp := classResponse{
		AssetClass: class,
		Rates:      h.schedule.ResolveFees(class),
		Recipients: h.schedule.ResolveRecipients(class),
	}
	if params, ok := h.schedule.AssetClass(class); ok && params.IsSet {
		resp.Override = &params
	}
	return resp
}

func (h *Handler) handleGetGlobal(w http.ResponseWriter, r *http.Request) {
	apihttp.WriteJSON(w, http.StatusOK, h.schedule.Global())
}

func (h *Handler) handleSetGlobal(w http.ResponseWriter, r *http.Request) {
	var params fees.Params
	if err := apihttp.DecodeJSON(r, &params); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	err := h.schedule.SetGlobal(r.Context(), auth.CallerFromContext(r.Context()), params)
	h.audit(r, "fees.global.set", "", err, params)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, h.schedule.Global())
}

func (h *Handler) handleGetClass(w http.ResponseWriter, r *http.Request) {
	apihttp.WriteJSON(w, http.StatusOK, h.classView(mux.Vars(r)["class"]))
}

func (h *Handler) handleSetClass(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	var params fees.Params
	if err := apihttp.DecodeJSON(r, &params); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	err := h.schedule.SetAssetClass(r.Context(), auth.CallerFromContext(r.Context()), class, params)
	h.audit(r, "fees.class.set", class, err, params)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, h.classView(class))
}

func (h *Handler) handleClearClass(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	err := h.schedule.ClearAssetClass(r.Context(), auth.CallerFromContext(r.Context()), class)
	h.audit(r, "fees.class.clear", class, err, fees.Params{})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, h.classView(class))
}

func (h *Handler) audit(r *http.Request, action, class string, err error, params fees.Params) {
	resourceID := class
	if resourceID == "" {
		resourceID = "global"
	}
	h.auditor.Record(r, audit.Entry{
		Action:       action,
		AssetClass:   class,
		ResourceType: "fee_params",
		ResourceID:   resourceID,
	}, err, map[string]any{
		"management_bps":  params.Rates.ManagementBps,
		"performance_bps": params.Rates.PerformanceBps,
		"penalty_bps":     params.Rates.PenaltyBps,
	})
}
