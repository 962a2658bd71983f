package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the wire format for every error response: a flat
// success=false envelope carrying a human-readable message, per the
// external interface contract.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// WriteError writes err to w as an ErrorEnvelope, using the HTTP status
// associated with its ErrorCode. Unclassified errors are written as a
// generic 500 with no internal detail leaked to the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := CodeOf(err)
	if code == ErrCodeInternalError {
		WriteInternalError(w)
		return
	}
	WriteErrorCode(w, code, err.Error())
}

// WriteErrorCode writes an error envelope for an explicit code and message,
// for call sites that have a message but no wrapped error value.
func WriteErrorCode(w http.ResponseWriter, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorEnvelope{Success: false, Error: message})
}

// WriteInternalError writes a generic 500 with no internal detail, for use
// by the panic-recovery middleware and any other boundary that must not
// leak internals to the caller.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorCode(w, ErrCodeInternalError, "Internal server error")
}
