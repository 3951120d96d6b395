package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"satauth.org/internal/auth"
	"satauth.org/internal/authz"
	"satauth.org/internal/obs"
)

const serviceName = "satauth"

// Pinger is the store handle the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks that the backing store answers.
type ReadyProbe struct {
	Store   Pinger
	Timeout time.Duration
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	if rp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.Timeout)
		defer cancel()
	}
	return rp.Store.Ping(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options tunes the HTTP layer.
type Options struct {
	Version     string
	CORSOrigins []string
	RateBurst   int
	RatePerSec  int
	MaxBody     int64
}

// API is the HTTP layer.
type API struct {
	router     *mux.Router
	auth       *auth.Service
	authz      *authz.Service
	readyProbe readinessChecker
	version    string
	origins    []string
	rateBurst  int
	ratePerSec int
	maxBody    int64
}

func New(authSvc *auth.Service, authzSvc *authz.Service, rp readinessChecker, opts Options) *API {
	a := &API{
		router:     mux.NewRouter(),
		auth:       authSvc,
		authz:      authzSvc,
		readyProbe: rp,
		version:    opts.Version,
		origins:    opts.CORSOrigins,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		maxBody:    opts.MaxBody,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready/metrics
	r.HandleFunc("/", a.Root).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// token exchanges
	r.HandleFunc("/google-sign-in", a.handleGoogleSignIn).Methods(http.MethodPost)
	r.Handle("/login", a.withAuth(http.HandlerFunc(a.handleLogin))).Methods(http.MethodPost)
	r.HandleFunc("/refresh-token", a.handleRefreshToken).Methods(http.MethodPost)

	// Only the active model's endpoints are mounted.
	if a.authz == nil {
		return
	}
	switch a.authz.Model() {
	case authz.ModelDirect:
		r.Handle("/authorizations", a.withAuth(http.HandlerFunc(a.handleListAuthorizations))).Methods(http.MethodGet)
		r.Handle("/update-authorization", a.withAuth(http.HandlerFunc(a.handleUpdateAuthorization))).Methods(http.MethodPut)
		r.Handle("/delete-authorization", a.withAuth(http.HandlerFunc(a.handleDeleteAuthorization))).Methods(http.MethodDelete)
	case authz.ModelRoles:
		r.Handle("/role-accounts", a.withAuth(http.HandlerFunc(a.handleRoleAccounts))).Methods(http.MethodGet)
		r.Handle("/update-account-roles", a.withAuth(http.HandlerFunc(a.handleUpdateAccountRoles))).Methods(http.MethodPut)
	}
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = obs.Instrument(h, a.routeLabel)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(a.origins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// routeLabel maps a request to its route template so metric labels stay
// bounded.
func (a *API) routeLabel(r *http.Request) string {
	var match mux.RouteMatch
	if a.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// --- Handlers ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "See /healthz for status and /metrics for metrics.",
		"service": serviceName,
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Logger().Warn("readiness check failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
