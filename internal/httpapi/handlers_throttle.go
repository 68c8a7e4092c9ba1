package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"QLDCwebserver/internal/auth"
	"QLDCwebserver/internal/domain"
	"QLDCwebserver/internal/throttle"
)

func (a *api) handleThrottleStatus(w http.ResponseWriter, r *http.Request) {
	profileID, ok := auth.ProfileID(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrForbidden)
		return
	}

	WriteJSON(w, http.StatusOK, toThrottleJSON(a.authSvc.Status(r.Context(), profileID)))
}

// handleThrottleStream streams the lock countdown as server-sent events. The
// stream ends after the unlocked status has been sent or when the client
// goes away.
func (a *api) handleThrottleStream(w http.ResponseWriter, r *http.Request) {
	profileID, ok := auth.ProfileID(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	c := a.authSvc.StartCountdown(r.Context(), profileID, a.tickInterval, func(st throttle.Status) {
		if err := writeEvent(w, "throttle", toThrottleJSON(st)); err != nil {
			return
		}
		flusher.Flush()
	})
	defer c.Stop()

	select {
	case <-c.Done():
	case <-r.Context().Done():
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
