package httpapi

import (
	"net/http"
	"strings"

	"satauth.org/internal/authz"
)

type updateAuthorizationRequest struct {
	Email         string       `json:"email"`
	AppID         string       `json:"app_id"`
	Authorization *authz.Entry `json:"authorization"`
}

type updateAccountRolesRequest struct {
	Email  string   `json:"email"`
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

func (a *API) authenticated(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := requester(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return "", false
	}
	return identity, true
}

// handleListAuthorizations lists accounts whose entry for app_id holds
// db_filter equal to value.
func (a *API) handleListAuthorizations(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.authenticated(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	appID := strings.TrimSpace(q.Get("app_id"))
	filter := strings.TrimSpace(q.Get("db_filter"))
	if appID == "" || filter == "" || !q.Has("value") {
		writeError(w, r, http.StatusBadRequest, "app_id, db_filter and value are required")
		return
	}
	accounts, err := a.authz.ListAccounts(r.Context(), identity, appID, filter, parseFilterValue(q.Get("value")))
	if err != nil {
		handleAuthzError(w, r, err, errorResponse{})
		return
	}
	writeJSON(w, http.StatusOK, newAccountsResponse(accounts))
}

// handleUpdateAuthorization replaces the target's entry for an application.
func (a *API) handleUpdateAuthorization(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.authenticated(w, r)
	if !ok {
		return
	}
	var req updateAuthorizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Authorization == nil {
		writeError(w, r, http.StatusBadRequest, "authorization is required")
		return
	}
	auths, err := a.authz.UpdateAuthorization(r.Context(), identity, req.Email, req.AppID, *req.Authorization)
	if err != nil {
		handleAuthzError(w, r, err, errorResponse{Authorizations: renderAuthorizations(auths)})
		return
	}
	writeJSON(w, http.StatusOK, authorizationsResponse{
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Authorizations: renderAuthorizations(auths),
	})
}

// handleDeleteAuthorization removes the target's entry for an application.
func (a *API) handleDeleteAuthorization(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.authenticated(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("email"))
	appID := strings.TrimSpace(q.Get("app_id"))
	if email == "" || appID == "" {
		writeError(w, r, http.StatusBadRequest, "app_id and email are required")
		return
	}
	auths, err := a.authz.DeleteAuthorization(r.Context(), identity, email, appID)
	if err != nil {
		handleAuthzError(w, r, err, errorResponse{Authorizations: renderAuthorizations(auths)})
		return
	}
	writeJSON(w, http.StatusOK, authorizationsResponse{
		Email:          strings.ToLower(email),
		Authorizations: renderAuthorizations(auths),
	})
}

// handleRoleAccounts lists accounts holding a role.
func (a *API) handleRoleAccounts(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.authenticated(w, r)
	if !ok {
		return
	}
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		writeError(w, r, http.StatusBadRequest, "role is required")
		return
	}
	accounts, err := a.authz.ListRoleAccounts(r.Context(), identity, role)
	if err != nil {
		handleAuthzError(w, r, err, errorResponse{})
		return
	}
	writeJSON(w, http.StatusOK, newAccountsResponse(accounts))
}

// handleUpdateAccountRoles adds and removes roles on the target account.
func (a *API) handleUpdateAccountRoles(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.authenticated(w, r)
	if !ok {
		return
	}
	var req updateAccountRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Add) == 0 && len(req.Remove) == 0 {
		writeError(w, r, http.StatusBadRequest, "add or remove is required")
		return
	}
	roles, err := a.authz.UpdateRoles(r.Context(), identity, req.Email, req.Add, req.Remove)
	if err != nil {
		handleAuthzError(w, r, err, errorResponse{Roles: roles})
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, rolesResponse{
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Roles: roles,
	})
}
