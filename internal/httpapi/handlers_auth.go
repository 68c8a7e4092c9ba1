package httpapi

import (
	"net/http"
	"time"

	"QLDCwebserver/internal/auth"
	"QLDCwebserver/internal/domain"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type userJSON struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

type loginResponse struct {
	User      userJSON     `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Throttle  throttleJSON `json:"throttle"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	if fields := validateLogin(req.Identifier, req.Password); fields != nil {
		WriteDomainError(w, domain.NewValidationError(fields))
		return
	}

	profileID, ok := auth.ProfileID(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrForbidden)
		return
	}

	res, st, err := a.authSvc.Login(r.Context(), profileID, req.Identifier, req.Password)
	if err != nil {
		a.logger.Debug("login failed", "ip", clientIP(r), "err", err)
		writeDomainError(w, err, &st)
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{
		User: userJSON{
			ID:          res.User.ID,
			Username:    res.User.Username,
			Email:       res.User.Email,
			DisplayName: res.User.DisplayName,
			Role:        string(res.User.Role),
		},
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Throttle:  toThrottleJSON(st),
	})
}
