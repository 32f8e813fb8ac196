package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"dealbadge/internal/types"
)

// maxRequestBodySize caps request bodies. Storefront price requests carry a
// shop's full discount list, which stays well below this.
const maxRequestBodySize = 1 << 20 // 1 MB

// APIErrorResponse is the envelope for every error response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON marshals data and writes it with status. A marshalling failure is
// turned into a 500 error envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as an error envelope. An *types.AppError anywhere in the
// chain decides the status and code; anything else is a 500 whose message is
// not exposed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	})
}

// DecodeJSON decodes exactly one JSON value from the request body into dst.
// Unknown fields are rejected only when strict is true; the storefront
// script sends extra discount attributes that must be tolerated.
//
// Every failure is a validation_invalid_json AppError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON object", nil)
	}
	return nil
}

// ReadBody reads the raw request body under the same size cap as DecodeJSON.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		return nil, mapDecodeError(err)
	}
	return body, nil
}

func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not exceed 1MB", err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON,
			"malformed JSON in request body", err,
			map[string]any{"offset": syntaxErr.Offset})
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON,
			"invalid value for field", err,
			map[string]any{"field": typeErr.Field, "expected": typeErr.Type.String()})
	}

	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err)
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not be empty", err)
	}

	return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid JSON in request body", err)
}
