package httpapi

import (
	"net/http"
	"strings"

	"satauth.org/internal/audit"
	"satauth.org/internal/auth"
)

type tokenRequest struct {
	Token string `json:"token"`
}

func decodeTokenRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return "", false
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return "", false
	}
	return token, true
}

// handleGoogleSignIn exchanges an identity-provider token for a token pair.
func (a *API) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if a.auth == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}
	token, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}
	pair, err := a.auth.SignIn(r.Context(), token)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	ctx := auth.ContextWithClaims(r.Context(), auth.Claims(pair.Claims))
	_ = audit.LogEvent(ctx, "auth.sign_in", map[string]any{
		"expires_at": pair.AccessExpiresAt.UTC(),
	})
	writeJSON(w, http.StatusOK, newTokenPairResponse(pair))
}

// handleLogin returns the claims carried by the caller's access token.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any(claims))
}

// handleRefreshToken exchanges a refresh token for a new pair built from the
// account's current profile.
func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if a.auth == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}
	token, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}
	pair, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	ctx := auth.ContextWithClaims(r.Context(), auth.Claims(pair.Claims))
	_ = audit.LogEvent(ctx, "auth.token.refreshed", map[string]any{
		"expires_at": pair.AccessExpiresAt.UTC(),
	})
	writeJSON(w, http.StatusOK, newTokenPairResponse(pair))
}
