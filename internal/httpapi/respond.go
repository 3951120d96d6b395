package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"satauth.org/internal/audit"
	"satauth.org/internal/auth"
	"satauth.org/internal/authz"
	"satauth.org/internal/obs"
)

type errorResponse struct {
	Message        string         `json:"message"`
	Reason         string         `json:"reason,omitempty"`
	Keys           []string       `json:"keys,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
	Authorizations map[string]any `json:"authorizations,omitempty"`
	Roles          []string       `json:"roles,omitempty"`
}

type tokenPairResponse struct {
	Token                 string    `json:"token"`
	TokenExpiresAt        time.Time `json:"token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

type accountResponse struct {
	Email          string         `json:"email"`
	CampusID       string         `json:"campus_id,omitempty"`
	Roles          []string       `json:"roles"`
	Authorizations map[string]any `json:"authorizations"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type accountsResponse struct {
	Accounts []accountResponse `json:"accounts"`
}

type authorizationsResponse struct {
	Email          string         `json:"email"`
	Authorizations map[string]any `json:"authorizations"`
}

type rolesResponse struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func newTokenPairResponse(p auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		Token:                 p.AccessToken,
		TokenExpiresAt:        p.AccessExpiresAt.UTC(),
		RefreshToken:          p.RefreshToken,
		RefreshTokenExpiresAt: p.RefreshExpiresAt.UTC(),
	}
}

func newAccountResponse(acc *authz.Account) accountResponse {
	roles := acc.Roles
	if roles == nil {
		roles = []string{}
	}
	return accountResponse{
		Email:          acc.Identity,
		CampusID:       acc.CampusID,
		Roles:          roles,
		Authorizations: renderAuthorizations(acc.Authorizations),
		CreatedAt:      acc.CreatedAt.UTC(),
		UpdatedAt:      acc.UpdatedAt.UTC(),
	}
}

func newAccountsResponse(accounts []*authz.Account) accountsResponse {
	out := accountsResponse{Accounts: make([]accountResponse, 0, len(accounts))}
	for _, acc := range accounts {
		out.Accounts = append(out.Accounts, newAccountResponse(acc))
	}
	return out
}

func renderAuthorizations(in map[string]authz.Entry) map[string]any {
	out := make(map[string]any, len(in))
	for app, entry := range in {
		out[app] = entry.Map()
	}
	return out
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, errorResponse{Message: msg})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, body errorResponse) {
	body.RequestID = audit.RequestIDFromContext(r.Context())
	writeJSON(w, code, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// parseFilterValue reads a query value as JSON when it parses, so that
// booleans and numbers match stored values. Anything else is a string.
func parseFilterValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// handleTokenError maps token and identity-provider failures.
func handleTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		writeError(w, r, http.StatusUnauthorized, "token expired, sign in again or refresh")
	case errors.Is(err, auth.ErrInvalidSignature):
		_ = audit.LogEvent(r.Context(), "auth.token.tampered", map[string]any{
			"path":   r.URL.Path,
			"remote": clientIP(r),
			"kind":   auth.FailureKind(err),
		})
		writeError(w, r, http.StatusBadRequest, "invalid token signature")
	case errors.Is(err, auth.ErrMalformedToken), errors.Is(err, auth.ErrMissingIdentity):
		writeError(w, r, http.StatusBadRequest, "malformed token")
	case errors.Is(err, auth.ErrIdentityProvider):
		writeError(w, r, http.StatusBadRequest, "there was an error decoding the identity provider token")
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		internalError(w, r, err)
	}
}

// handleAuthzError maps service errors. state carries the unchanged record
// returned alongside a refusal.
func handleAuthzError(w http.ResponseWriter, r *http.Request, err error, state errorResponse) {
	var denial *authz.Denial
	switch {
	case errors.As(err, &denial):
		state.Message = "permission denied"
		state.Reason = string(denial.Reason)
		state.Keys = denial.Keys
		writeErrorBody(w, r, http.StatusBadRequest, state)
	case errors.Is(err, authz.ErrNotFound):
		state.Message = "this authorization does not exist"
		writeErrorBody(w, r, http.StatusBadRequest, state)
	case errors.Is(err, authz.ErrInvalidInput), errors.Is(err, authz.ErrWrongModel):
		state.Message = err.Error()
		writeErrorBody(w, r, http.StatusBadRequest, state)
	default:
		internalError(w, r, err)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	obs.Logger().Error("request failed",
		slog.String("request_id", audit.RequestIDFromContext(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
