package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/learnhub/learnhub-lms/internal/attempt"
	"github.com/learnhub/learnhub-lms/internal/course"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errStatus(err))
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, course.ErrNotFound),
		errors.Is(err, attempt.ErrNoActiveAttempt):
		return http.StatusNotFound
	case errors.Is(err, attempt.ErrQuotaExceeded),
		errors.Is(err, attempt.ErrAttemptInProgress),
		errors.Is(err, attempt.ErrAlreadySubmitted),
		errors.Is(err, course.ErrComponentLocked):
		return http.StatusConflict
	case errors.Is(err, attempt.ErrInvalidAnswerPayload):
		return http.StatusBadRequest
	case errors.Is(err, attempt.ErrComponentMisconfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attempt.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
