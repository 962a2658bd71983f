package httpserver

import (
	"net/http"
	"time"

	verifyerrors "github.com/Avantemaps-pi/avante-verifier-internal/internal/errors"
	"github.com/Avantemaps-pi/avante-verifier-internal/internal/verify"
)

// handleVerify serves POST /verify-business.
func (h *handlers) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verify.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		verifyerrors.WriteErrorCode(w, verifyerrors.ErrCodeBadRequest, "request body is not valid JSON")
		return
	}

	resp, err := h.orchestrator.Verify(r.Context(), req)
	if err != nil {
		if rlErr, ok := err.(*verify.RateLimitError); ok {
			setRateLimitHeaders(w, rlErr.Result)
		}
		verifyerrors.WriteError(w, err)
		return
	}

	setCacheHeaders(w, resp.Cached, resp.CacheExpiresAt)
	writeJSON(w, http.StatusOK, resp)
}

// handleVerifyBatch serves POST /verify-business-batch.
func (h *handlers) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req verify.BatchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		verifyerrors.WriteErrorCode(w, verifyerrors.ErrCodeBadRequest, "request body is not valid JSON")
		return
	}

	resp, err := h.orchestrator.VerifyBatch(r.Context(), req)
	if err != nil {
		verifyerrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// health reports process liveness and uptime, independent of downstream dependencies.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(serverStartTime).String(),
	})
}
