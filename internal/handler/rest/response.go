package hrest

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOutcome renders the tagged mutation result with a status matching
// the error kind.
func writeOutcome(w http.ResponseWriter, err error, outcome domain.MutationOutcome) {
	if outcome.Success {
		writeJSON(w, http.StatusOK, outcome)
		return
	}
	writeJSON(w, statusFor(err), outcome)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfTransferNotAllowed),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrAccountInactive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), domain.ErrOutcome(err))
}
