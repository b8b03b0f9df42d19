package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shohag/hookrelay/internal/apperr"
)

type errorResponse struct {
	Error   string        `json:"error"`
	Code    string        `json:"code,omitempty"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError renders err through the shared error envelope. Internal
// failures are logged and reported without their cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rich := apperr.Envelope(err)
	resp := errorResponse{Error: rich.Message, Code: rich.TextCode}

	if rich.Code >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if rich.Code == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	for _, fe := range rich.AllValidationErrors() {
		resp.Details = append(resp.Details, fieldDetail{Field: fe.Field, Message: fe.Message})
	}
	writeJSON(w, rich.Code, resp)
}

// decodeJSON reads a JSON body. An empty body is allowed when optional is set.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	if r.Body == nil || (optional && r.ContentLength == 0) {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("body", "invalid request body")
	}
	return nil
}
