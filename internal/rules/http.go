package rules

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const maxRequestBytes = 1 << 20

// Handler exposes an Oracle over HTTP as POST {prefix}/apply and POST {prefix}/classify.
// Mount it with http.StripPrefix; Remote speaks the same protocol.
func Handler(o Oracle, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /apply", func(w http.ResponseWriter, r *http.Request) {
		var req applyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		next, err := o.ApplyMove(r.Context(), req.Position, req.Move)
		if err != nil {
			writeOracleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, applyResponse{Position: next})
	})
	mux.HandleFunc("POST /classify", func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := o.Classify(r.Context(), req.Position)
		if err != nil {
			writeOracleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, classifyResponse{Classification: c})
	})
	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func writeOracleError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrIllegalMove):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidPosition):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		logger.Warn("rules_oracle_error", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
