// Package httpapi is the JSON HTTP surface of the storefront.
package httpapi

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"horizon.shop/internal/auth"
	"horizon.shop/internal/obs"
	"horizon.shop/internal/shop"
	"horizon.shop/internal/stream"
)

const serviceName = obs.ServiceName

// Readiness reports whether dependencies can serve traffic.
type Readiness interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators injected at startup.
type Deps struct {
	Shop    *shop.Service
	Gate    *auth.Gate
	Events  *stream.Stream
	Ready   Readiness
	Version string

	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
	CORSOrigins  []string

	// Peers allowed to set X-Forwarded-For. Empty means the socket peer is the client.
	TrustedProxies []netip.Prefix
}

// API is the HTTP layer.
type API struct {
	shop    *shop.Service
	gate    *auth.Gate
	events  *stream.Stream
	ready   Readiness
	version string

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
	corsOrigins  []string

	trustedProxies []netip.Prefix
}

// New builds the API from deps, filling zero limits with defaults.
func New(d Deps) *API {
	a := &API{
		shop:         d.Shop,
		gate:         d.Gate,
		events:       d.Events,
		ready:        d.Ready,
		version:      d.Version,
		rateBurst:    d.RateBurst,
		ratePerSec:   d.RatePerSec,
		maxBodyBytes: d.MaxBodyBytes,
		corsOrigins:  d.CORSOrigins,

		trustedProxies: d.TrustedProxies,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	return a
}

// Handler returns the fully wrapped router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(ClientIP(a.trustedProxies), RequestID, Recover, Logging, obs.Instrument)
	r.Use(CORS(a.corsOrigins))
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBodyBytes) })
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, kindNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, kindValidation, "method not allowed")
	})

	authn := a.gate.Authenticate()
	admin := a.gate.RequireRole(auth.RoleAdmin)
	self := a.gate.RequireSelf(func(r *http.Request) string { return chi.URLParam(r, "email") })

	// operational
	r.Get("/", a.Root)
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	// catalog
	r.Get("/products", a.listProducts)
	r.Get("/product/{id}", a.getProduct)
	r.With(a.guard(authn, admin)).Post("/product", a.createProduct)
	r.With(a.guard(authn)).Put("/product/{id}", a.updateProduct)
	r.With(a.guard(authn, admin)).Delete("/product/{id}", a.deleteProduct)

	// orders
	r.With(a.guard(authn)).Post("/order", a.placeOrder)
	r.With(a.guard(authn, admin)).Get("/orders", a.listOrders)
	r.With(a.guard(authn, admin)).Get("/orders/stream", a.streamOrders)
	r.With(a.guard(authn, self)).Get("/orders/{email}", a.listMyOrders)
	r.With(a.guard(authn, admin)).Put("/orders/ship/{id}", a.updateShipment)
	r.With(a.guard(authn)).Delete("/orders/ship/{id}", a.deleteOrder)
	r.With(a.guard(authn)).Put("/order/payment/{id}", a.recordPayment)

	// reviews
	r.Get("/reviews", a.listReviews)
	r.With(a.guard(authn)).Post("/review", a.addReview)

	// users
	r.With(a.guard(authn, admin)).Get("/user", a.listUsers)
	r.With(a.guard(authn)).Get("/admin/{email}", a.checkAdmin)
	r.With(a.guard(authn, admin)).Put("/user/admin/{email}", a.promoteAdmin)
	r.With(a.guard(authn, self)).Get("/user/profile/{email}", a.getProfile)
	r.With(a.guard(authn, self)).Put("/user/profile/{email}", a.updateProfile)
	r.Put("/user/{email}", a.registerUser)

	// payments
	r.With(a.guard(authn)).Post("/create-payment-intent", a.createPaymentIntent)

	return otelhttp.NewHandler(r, serviceName)
}

// --- operational handlers ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Horizon Server is ok."))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready.Ping(r.Context()); err != nil {
			obs.Logger().WithError(err).Warn("readiness_failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
