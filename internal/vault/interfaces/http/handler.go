package http

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"cosmossdk.io/math"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tranche-vault/internal/access"
	apihttp "tranche-vault/internal/api/http"
	"tranche-vault/internal/audit"
	"tranche-vault/internal/auth"
	"tranche-vault/internal/observability/metrics"
	"tranche-vault/internal/vault/application"
	vault "tranche-vault/internal/vault/domain"
	"tranche-vault/internal/vault/interfaces"
)

// Handler serves vault endpoints for every configured asset class.
type Handler struct {
	engines  map[string]*application.Engine
	classes  []string
	auditor  apihttp.Auditor
	logger   *zap.Logger
	now      func() time.Time
	decimals int32
}

// Option configures a Handler.
type Option func(*Handler)

// WithDecimals sets the fractional digits used in statements.
func WithDecimals(decimals int32) Option {
	return func(h *Handler) {
		if decimals >= 0 {
			h.decimals = decimals
		}
	}
}

// WithNow overrides the statement clock.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(engines []*application.Engine, auditLogger audit.Logger, logger *zap.Logger, opts ...Option) (*Handler, error) {
	if len(engines) == 0 {
		return nil, errors.New("vault handler: no engines")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		engines:  make(map[string]*application.Engine, len(engines)),
		auditor:  apihttp.NewAuditor(auditLogger, logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		decimals: 6,
	}
	for _, engine := range engines {
		if engine == nil {
			return nil, errors.New("vault handler: nil engine")
		}
		if _, ok := h.engines[engine.AssetClass()]; ok {
			return nil, fmt.Errorf("vault handler: duplicate asset class %s", engine.AssetClass())
		}
		h.engines[engine.AssetClass()] = engine
		h.classes = append(h.classes, engine.AssetClass())
	}
	sort.Strings(h.classes)
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the vault routes on router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/vaults", h.handleList).Methods(http.MethodGet)
	sub := router.PathPrefix("/api/v1/vaults/{class}").Subrouter()
	sub.HandleFunc("", h.handleSummary).Methods(http.MethodGet)
	sub.HandleFunc("/positions/{holder}", h.handlePosition).Methods(http.MethodGet)
	sub.HandleFunc("/preview", h.handlePreview).Methods(http.MethodGet)
	sub.HandleFunc("/requests", h.handleRequests).Methods(http.MethodGet)
	sub.HandleFunc("/requests/{id}", h.handleRequest).Methods(http.MethodGet)
	sub.HandleFunc("/requests/{id}/cancel", h.handleCancel).Methods(http.MethodPost)
	sub.HandleFunc("/requests/{id}/process", h.handleProcess).Methods(http.MethodPost)
	sub.HandleFunc("/deposit", h.handleDeposit).Methods(http.MethodPost)
	sub.HandleFunc("/redeem", h.handleRedeem).Methods(http.MethodPost)
	sub.HandleFunc("/early-exit", h.handleEarlyExit).Methods(http.MethodPost)
	sub.HandleFunc("/process-batch", h.handleProcessBatch).Methods(http.MethodPost)
	sub.HandleFunc("/transfer", h.handleTransfer).Methods(http.MethodPost)
	sub.HandleFunc("/collect-fees", h.handleCollectFees).Methods(http.MethodPost)
	sub.HandleFunc("/sweep", h.handleSweep).Methods(http.MethodPost)
	sub.HandleFunc("/statements/{owner}.{format}", h.handleStatement).Methods(http.MethodGet)
}

func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (*application.Engine, bool) {
	class := mux.Vars(r)["class"]
	engine, ok := h.engines[class]
	if !ok {
		apihttp.WriteError(w, vault.ErrUnknownVault.Wrapf("asset class %s", class))
		return nil, false
	}
	return engine, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries := make([]application.Summary, 0, len(h.classes))
	for _, class := range h.classes {
		summary, err := h.engines[class].Summary()
		if err != nil {
			apihttp.WriteError(w, err)
			return
		}
		summaries = append(summaries, summary)
	}
	apihttp.WriteJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	summary, err := engine.Summary()
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, engine.Position(mux.Vars(r)["holder"]))
}

type previewResponse struct {
	Assets math.Uint `json:"assets"`
	Shares math.Uint `json:"shares"`
}

// handlePreview prices ?assets= in shares or ?shares= in assets at the current valuation.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	switch {
	case query.Get("assets") != "":
		assets, err := apihttp.ParseAmount("assets", query.Get("assets"))
		if err != nil {
			apihttp.WriteError(w, err)
			return
		}
		shares, err := engine.PreviewDeposit(assets)
		if err != nil {
			apihttp.WriteError(w, err)
			return
		}
		apihttp.WriteJSON(w, http.StatusOK, previewResponse{Assets: assets, Shares: shares})
	case query.Get("shares") != "":
		shares, err := apihttp.ParseAmount("shares", query.Get("shares"))
		if err != nil {
			apihttp.WriteError(w, err)
			return
		}
		assets, err := engine.PreviewRedeem(shares)
		if err != nil {
			apihttp.WriteError(w, err)
			return
		}
		apihttp.WriteJSON(w, http.StatusOK, previewResponse{Assets: assets, Shares: shares})
	default:
		apihttp.WriteError(w, apihttp.ErrInvalidQuery.Wrap("assets or shares is required"))
	}
}

type requestResponse struct {
	vault.Request
	Status vault.RequestStatus `json:"status"`
}

func toRequestResponse(request vault.Request) requestResponse {
	return requestResponse{Request: request, Status: request.Status()}
}

// handleRequests lists ?owner= requests, or the due ids when ?due=true.
func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	owner := r.URL.Query().Get("owner")
	due, err := apihttp.ParseBoolQuery(r, "due")
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	if due {
		ids := engine.ListDue()
		if owner != "" {
			ids = engine.ListDueByOwner(owner)
		}
		if ids == nil {
			ids = []uint64{}
		}
		apihttp.WriteJSON(w, http.StatusOK, map[string]any{"due": ids})
		return
	}
	if owner == "" {
		apihttp.WriteError(w, apihttp.ErrInvalidQuery.Wrap("owner is required"))
		return
	}
	requests := engine.RequestsByOwner(owner)
	out := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, toRequestResponse(request))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	id, err := apihttp.ParseID(mux.Vars(r)["id"])
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	request, found := engine.Request(id)
	if !found {
		apihttp.WriteError(w, vault.ErrUnknownRequest.Wrapf("id %d", id))
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

type depositResponse struct {
	Shares  math.Uint     `json:"shares"`
	Tranche vault.Tranche `json:"tranche"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Assets   string `json:"assets"`
		Receiver string `json:"receiver"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	assets, err := apihttp.ParseAmount("assets", req.Assets)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	caller := auth.CallerFromContext(r.Context())
	if req.Receiver == "" {
		req.Receiver = caller.Address
	}
	result, err := engine.Deposit(r.Context(), caller, assets, req.Receiver)
	h.logAudit(r, engine.AssetClass(), "vault.deposit", "position", req.Receiver, err, map[string]any{"assets": req.Assets})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, depositResponse{Shares: result.Shares, Tranche: result.Tranche})
}

type redeemResponse struct {
	Shares math.Uint `json:"shares"`
	Assets math.Uint `json:"assets"`
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Shares   string `json:"shares"`
		Receiver string `json:"receiver"`
		Owner    string `json:"owner"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	shares, err := apihttp.ParseAmount("shares", req.Shares)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	caller := auth.CallerFromContext(r.Context())
	if req.Owner == "" {
		req.Owner = caller.Address
	}
	if req.Receiver == "" {
		req.Receiver = caller.Address
	}
	result, err := engine.Redeem(r.Context(), caller, shares, req.Receiver, req.Owner)
	h.logAudit(r, engine.AssetClass(), "vault.redeem", "position", req.Owner, err, map[string]any{"shares": req.Shares, "receiver": req.Receiver})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, redeemResponse{Shares: result.Shares, Assets: result.Assets})
}

func (h *Handler) handleEarlyExit(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Shares   string `json:"shares"`
		Receiver string `json:"receiver"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	shares, err := apihttp.ParseAmount("shares", req.Shares)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	caller := auth.CallerFromContext(r.Context())
	if req.Receiver == "" {
		req.Receiver = caller.Address
	}
	request, err := engine.RequestEarlyExit(r.Context(), caller, shares, req.Receiver)
	resourceID := ""
	if err == nil {
		resourceID = strconv.FormatUint(request.ID, 10)
	}
	h.logAudit(r, engine.AssetClass(), "vault.early_exit", "redemption_request", resourceID, err, map[string]any{"shares": req.Shares, "receiver": req.Receiver})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusAccepted, toRequestResponse(request))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	id, err := apihttp.ParseID(mux.Vars(r)["id"])
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	request, err := engine.CancelRedemption(r.Context(), auth.CallerFromContext(r.Context()), id)
	h.logAudit(r, engine.AssetClass(), "vault.cancel", "redemption_request", mux.Vars(r)["id"], err, nil)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

type settlementResponse struct {
	RequestID uint64    `json:"request_id"`
	Receiver  string    `json:"receiver"`
	Gross     math.Uint `json:"gross"`
	Net       math.Uint `json:"net"`
	Penalty   math.Uint `json:"penalty"`
}

func toSettlementResponse(s vault.Settlement) settlementResponse {
	return settlementResponse{RequestID: s.RequestID, Receiver: s.Receiver, Gross: s.Gross, Net: s.Net, Penalty: s.Penalty}
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	id, err := apihttp.ParseID(mux.Vars(r)["id"])
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	settlement, err := engine.ProcessRedemption(r.Context(), auth.CallerFromContext(r.Context()), id)
	h.logAudit(r, engine.AssetClass(), "vault.process", "redemption_request", mux.Vars(r)["id"], err, nil)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

type skippedResponse struct {
	ID     uint64 `json:"id"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type batchResponse struct {
	Processed []settlementResponse `json:"processed"`
	Skipped   []skippedResponse    `json:"skipped"`
}

// handleProcessBatch settles the given ids, or every due request when none are given.
func (h *Handler) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []uint64 `json:"ids"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	ids := req.IDs
	if len(ids) == 0 {
		ids = engine.ListDue()
	}
	result, err := engine.ProcessBatch(r.Context(), auth.CallerFromContext(r.Context()), ids)
	h.logAudit(r, engine.AssetClass(), "vault.process_batch", "redemption_queue", "", err, map[string]any{
		"requested": len(ids),
		"processed": len(result.Processed),
		"skipped":   len(result.Skipped),
	})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	resp := batchResponse{
		Processed: make([]settlementResponse, 0, len(result.Processed)),
		Skipped:   make([]skippedResponse, 0, len(result.Skipped)),
	}
	for _, settlement := range result.Processed {
		resp.Processed = append(resp.Processed, toSettlementResponse(settlement))
	}
	for _, skipped := range result.Skipped {
		resp.Skipped = append(resp.Skipped, skippedResponse{ID: skipped.ID, Code: skipped.Code, Reason: skipped.Reason})
	}
	apihttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		To     string `json:"to"`
		Shares string `json:"shares"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	shares, err := apihttp.ParseAmount("shares", req.Shares)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	moved, err := engine.Transfer(r.Context(), auth.CallerFromContext(r.Context()), req.To, shares)
	h.logAudit(r, engine.AssetClass(), "vault.transfer", "position", req.To, err, map[string]any{"shares": req.Shares})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, map[string]any{"to": req.To, "tranches": moved})
}

type feeCollectionResponse struct {
	Nav            math.Uint `json:"nav"`
	Management     math.Uint `json:"management"`
	Performance    math.Uint `json:"performance"`
	HighWaterMark  math.Uint `json:"high_water_mark"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

func (h *Handler) handleCollectFees(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	result, err := engine.CollectFees(r.Context(), auth.CallerFromContext(r.Context()))
	h.logAudit(r, engine.AssetClass(), "vault.collect_fees", "vault", engine.AssetClass(), err, nil)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, feeCollectionResponse{
		Nav:            result.Nav,
		Management:     result.Management,
		Performance:    result.Performance,
		HighWaterMark:  result.HighWaterMark,
		ElapsedSeconds: int64(result.Elapsed / time.Second),
	})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	amount, err := apihttp.ParseAmount("amount", req.Amount)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	deployment, err := engine.SweepToTreasury(r.Context(), auth.CallerFromContext(r.Context()), amount)
	h.logAudit(r, engine.AssetClass(), "vault.sweep", "treasury_deployment", deployment.ID, err, map[string]any{"amount": req.Amount})
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, deployment)
}

// handleStatement serves GET /api/v1/vaults/{class}/statements/{owner}.{pdf|xlsx}.
// Holders may only fetch their own statement.
func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	owner, format := vars["owner"], vars["format"]
	caller := auth.CallerFromContext(r.Context())
	if caller.Address != owner && !caller.Has(access.CapVaultOperator) {
		apihttp.WriteError(w, vault.ErrNotOwner.Wrapf("statement of %s", owner))
		return
	}

	start := time.Now()
	stmt, err := interfaces.BuildStatement(engine, owner, h.decimals, h.now())
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		apihttp.WriteError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = interfaces.BuildStatementPDF(stmt)
		contentType = "application/pdf"
	case "xlsx":
		data, err = interfaces.BuildStatementXLSX(stmt)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		metrics.ObserveStatementExport(format, metrics.ResultRejected, time.Since(start))
		apihttp.WriteError(w, apihttp.ErrInvalidQuery.Wrap("format must be pdf or xlsx"))
		return
	}
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		h.logger.Error("render statement failed", zap.String("asset_class", engine.AssetClass()), zap.String("holder", owner), zap.Error(err))
		apihttp.WriteError(w, err)
		return
	}
	metrics.ObserveStatementExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%s.%s", engine.AssetClass(), owner, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) logAudit(r *http.Request, assetClass, action, resourceType, resourceID string, opErr error, metadata map[string]any) {
	h.auditor.Record(r, audit.Entry{
		Action:       action,
		AssetClass:   assetClass,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}, opErr, metadata)
}
