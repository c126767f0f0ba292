package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrStrategyNotFound), errors.Is(err, contracts.ErrDayNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrDuplicateDay):
		return http.StatusConflict
	case errors.Is(err, contracts.ErrOutOfOrderDay):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contracts.ErrIncompletePopulation):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError writes err with its mapped status; unexpected errors are
// logged and hidden from the client
func respondDomainError(w http.ResponseWriter, log *logger.Logger, err error, msg string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error(msg)
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}

// strategyIDVar parses the {id} path variable
func strategyIDVar(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("strategy id %q: %w", raw, contracts.ErrInvalidInput)
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse(contracts.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q (expected YYYY-MM-DD): %w", raw, contracts.ErrInvalidInput)
	}
	return d, nil
}
