package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tranche-vault/internal/access"
	apihttp "tranche-vault/internal/api/http"
	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	eligibility "tranche-vault/internal/eligibility/domain"
)

// Handler serves allow-list endpoints.
type Handler struct {
	store   eligibility.Store
	auditor apihttp.Auditor
}

// NewHandler constructs a Handler.
func NewHandler(store eligibility.Store, auditor apihttp.Auditor) (*Handler, error) {
	if store == nil {
		return nil, errors.New("eligibility handler: nil store")
	}
	return &Handler{store: store, auditor: auditor}, nil
}

// Register mounts the allow-list routes on router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/eligibility/{class}", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/eligibility/{class}/{address}", h.handleCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/eligibility/{class}/{address}", h.handleAllow).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/eligibility/{class}/{address}", h.handleRevoke).Methods(http.MethodDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	class := mux.Vars(r)["class"]
	addresses, err := h.store.Entries(r.Context(), class)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, map[string]any{"asset_class": class, "addresses": addresses})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ok, err := h.store.IsEligible(r.Context(), vars["class"], vars["address"])
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, map[string]any{"asset_class": vars["class"], "address": vars["address"], "eligible": ok})
}

func (h *Handler) handleAllow(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "eligibility.allow", h.store.Allow)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "eligibility.revoke", h.store.Revoke)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, eligibility.Entry) error) {
	vars := mux.Vars(r)
	entry := eligibility.Entry{AssetClass: vars["class"], Address: vars["address"]}
	caller := auth.CallerFromContext(r.Context())
	var err error
	if !caller.Has(access.CapVaultAdmin) {
		err = eligibility.ErrUnauthorized.Wrapf("caller %s", caller.Address)
	} else {
		err = apply(r.Context(), entry)
	}
	h.auditor.Record(r, audit.Entry{
		Action:       action,
		AssetClass:   entry.AssetClass,
		ResourceType: "eligibility_entry",
		ResourceID:   entry.Address,
	}, err, nil)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
