package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"QLDCwebserver/internal/domain"
	"QLDCwebserver/internal/throttle"
)

type errorEnvelope struct {
	Error    apiError      `json:"error"`
	Throttle *throttleJSON `json:"throttle,omitempty"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type throttleJSON struct {
	Locked            bool  `json:"locked"`
	RemainingAttempts int   `json:"remaining_attempts"`
	LockRemainingMs   int64 `json:"lock_remaining_ms"`
}

func toThrottleJSON(st throttle.Status) throttleJSON {
	return throttleJSON{
		Locked:            st.Locked,
		RemainingAttempts: st.RemainingAttempts,
		LockRemainingMs:   st.LockRemaining.Milliseconds(),
	}
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteDomainError(w http.ResponseWriter, err error) {
	writeDomainError(w, err, nil)
}

// writeDomainError maps err onto the JSON error envelope, attaching the
// throttle status when one is known.
func writeDomainError(w http.ResponseWriter, err error, st *throttle.Status) {
	env := errorEnvelope{}
	if st != nil {
		tj := toThrottleJSON(*st)
		env.Throttle = &tj
	}

	var (
		status    int
		validErr  *domain.ValidationError
		lockedErr *domain.LockedError
	)
	switch {
	case errors.As(err, &validErr):
		status = http.StatusBadRequest
		env.Error = apiError{Code: "validation_error", Message: "invalid request", Fields: validErr.Fields}
	case errors.As(err, &lockedErr):
		status = http.StatusLocked
		env.Error = apiError{Code: "locked", Message: "too many failed attempts, try again later"}
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(lockedErr.Remaining.Seconds()))))
	case errors.Is(err, domain.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		env.Error = apiError{Code: "invalid_credentials", Message: "invalid login or password"}
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
		env.Error = apiError{Code: "upstream_error", Message: "identity service unavailable"}
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
		env.Error = apiError{Code: "forbidden", Message: "forbidden"}
	default:
		status = http.StatusInternalServerError
		env.Error = apiError{Code: "internal_error", Message: "internal server error"}
	}

	WriteJSON(w, status, env)
}
