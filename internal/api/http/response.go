package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"

	"tranche-vault/internal/failure"
)

const timeLayout = time.RFC3339

const codespace = "api"

var (
	// ErrInvalidBody is returned for request bodies that are not valid JSON.
	ErrInvalidBody = failure.Register(codespace, 2, "invalid json", failure.KindValidation)
	// ErrInvalidAmount is returned for amounts that are not base-10 unsigned integers.
	ErrInvalidAmount = failure.Register(codespace, 3, "invalid amount", failure.KindValidation)
	// ErrInvalidID is returned for malformed request ids.
	ErrInvalidID = failure.Register(codespace, 4, "invalid id", failure.KindValidation)
	// ErrInvalidQuery is returned for malformed query parameters.
	ErrInvalidQuery = failure.Register(codespace, 5, "invalid query", failure.KindValidation)
)

// ErrorBody is the JSON shape of every rejected request.
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindAuthorization:
		return http.StatusForbidden
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindState:
		return http.StatusConflict
	case failure.KindInsufficient:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as an ErrorBody. Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	body := ErrorBody{Code: failure.Code(err), Kind: string(kind), Message: err.Error()}
	if kind == failure.KindInternal {
		body.Message = "internal error"
	}
	WriteJSON(w, StatusFor(kind), body)
}

// DecodeJSON decodes the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return ErrInvalidBody.Wrap(err.Error())
	}
	return nil
}

// ParseAmount parses a base-10 unsigned integer amount. Empty input is rejected.
func ParseAmount(field, value string) (math.Uint, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return math.ZeroUint(), ErrInvalidAmount.Wrapf("%s is required", field)
	}
	amount, err := math.ParseUint(value)
	if err != nil {
		return math.ZeroUint(), ErrInvalidAmount.Wrapf("%s: %s", field, value)
	}
	return amount, nil
}

// ParseID parses a request id path segment.
func ParseID(value string) (uint64, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidID.Wrap(value)
	}
	return id, nil
}

// ParseIDs parses a list of request ids.
func ParseIDs(values []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(values))
	for _, value := range values {
		id, err := ParseID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseBoolQuery reads an optional boolean query parameter.
func ParseBoolQuery(r *http.Request, key string) (bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, ErrInvalidQuery.Wrapf("%s must be a boolean", key)
	}
	return parsed, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
