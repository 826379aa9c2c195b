package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/crossgate-dev/crossgate/internal/auth/registry"
	"github.com/crossgate-dev/crossgate/internal/auth/service"
	"github.com/crossgate-dev/crossgate/internal/auth/store"
	"github.com/crossgate-dev/crossgate/pkg/httpx"
	"github.com/crossgate-dev/crossgate/pkg/jwtx"
	"github.com/crossgate-dev/crossgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     *jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	registry registry.Registry

	LoginService    *service.LoginService
	MFAService      *service.MFAService
	QRCoordinator   *service.QRCoordinator
	ApprovalService *service.ApprovalService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier *jwtx.Verifier,
	buildVersion string,
	st store.Store,
	reg registry.Registry,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		registry:     reg,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerQR()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{LoginService: r.LoginService}

	// POST /login - strict rate limit by IP (credential guessing surface)
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /mfa/verify - strict rate limit by IP (unauthenticated; the
	// challenge itself also caps attempts server-side)
	r.Mux.Handle("POST /v1/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleMFAVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerQR() {
	qr := &QRHandler{QRCoordinator: r.QRCoordinator, LoginService: r.LoginService}
	approval := &ApprovalHandler{ApprovalService: r.ApprovalService}

	// POST /qr/start - moderate rate limit by IP (unauthenticated create)
	r.Mux.Handle("POST /v1/qr/start",
		httpx.Chain(http.HandlerFunc(qr.HandleStart),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /qr/{session_id}/wait - long poll, lenient limit keyed by IP plus
	// session so a stuck client cannot starve other sessions
	r.Mux.Handle("GET /v1/qr/{session_id}/wait",
		httpx.Chain(http.HandlerFunc(qr.HandleWait),
			httpx.RateLimitBySession(httpx.LenientLimit, "session_id"),
		),
	)

	// DELETE /qr/{session_id} - moderate rate limit by IP
	r.Mux.Handle("DELETE /v1/qr/{session_id}",
		httpx.Chain(http.HandlerFunc(qr.HandleCancel),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /qr/approve - authenticated, moderate rate limit by user
	r.Mux.Handle("POST /v1/qr/approve",
		httpx.Chain(http.HandlerFunc(approval.HandleApprove),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /qr/reject - authenticated, moderate rate limit by user
	r.Mux.Handle("POST /v1/qr/reject",
		httpx.Chain(http.HandlerFunc(approval.HandleReject),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	// POST /mfa/totp/enroll - moderate rate limit by user
	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /mfa/totp/verify - strict rate limit by user (prevent brute force
	// of TOTP codes)
	r.Mux.Handle("POST /v1/mfa/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// DELETE /mfa/totp - strict rate limit by user (requires a current code)
	r.Mux.Handle("DELETE /v1/mfa/totp",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.registry, r.keys))
}
