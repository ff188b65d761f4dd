package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
)

// maxBodyBytes bounds request body reads.
const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Meta    any  `json:"meta,omitempty"`
}

type errorEnvelope struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error"`
	Code       string         `json:"code"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:      se.Message,
		Code:       se.Code,
		StatusCode: se.HTTPStatus,
		Details:    se.Details,
	})
}

// decodeBody parses the JSON request body into dst with a bounded read.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.InvalidInput("", "failed to read request body")
	}
	if len(body) == 0 {
		return errors.InvalidInput("", "request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.InvalidInput("", "malformed JSON body")
	}
	return nil
}

// parsePage reads ?page= and ?limit= with the store defaults applied later by
// Normalize.
func parsePage(r *http.Request) storage.Page {
	var p storage.Page
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		p.Number = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		p.Size = v
	}
	return p
}

// parseSort reads ?sort= and ?order=desc.
func parseSort(r *http.Request) storage.Sort {
	return storage.Sort{
		Field: r.URL.Query().Get("sort"),
		Desc:  r.URL.Query().Get("order") == "desc",
	}
}
