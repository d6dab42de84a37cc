package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/PartyBooth/internal/middleware"
	"github.com/atinyakov/PartyBooth/internal/service"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth     *AuthHandler
	Admin    *AdminHandler
	Sessions *SessionHandler
	Capture  *CaptureHandler
	Download *DownloadHandler

	// Tokens verifies bearer tokens on device routes.
	Tokens middleware.TokenVerifier
	// AdminKey guards the admin routes. Empty disables them.
	AdminKey string
	// Reveal is handed to admin requests through their context.
	Reveal *service.RevealCache
}

// NewRouter constructs and returns an HTTP handler that serves the
// booth API under /api.
//
// Routes:
//
//	POST /api/auth/login                      → Auth.Login
//	POST /api/auth/verify                     → Auth.Verify
//	GET  /api/download/{photoID}              → Download.Download
//	GET  /api/healthz
//	POST /api/sessions                        → Sessions.Create   (token)
//	POST /api/sessions/{sessionID}/capture    → Capture.Capture   (token)
//	POST /api/sessions/{sessionID}/photos     → Sessions.Upload   (token)
//	GET  /api/sessions/{sessionID}/photos     → Sessions.List     (token)
//	POST /api/sessions/{sessionID}/select     → Sessions.Select   (token)
//	POST /api/admin/devices                   → Admin.CreateDevice (admin key)
//	POST /api/admin/devices/active            → Admin.SetActive    (admin key)
//	GET  /api/admin/devices                   → Admin.ListDevices  (admin key)
//	GET  /api/admin/devices/{deviceID}/password → Admin.RevealPassword (admin key)
//
// Middleware chain: request id, panic recovery, request logging and
// gzip compression for everything; JSON content-type enforcement on
// routes with a JSON body.
func NewRouter(h Handlers, logger *zap.Logger) (http.Handler, error) {
	compress, err := gzhttp.NewWrapper(
		// capture events must reach the client as they happen and
		// photos are already compressed
		gzhttp.ExceptContentTypes([]string{"application/x-ndjson", "image/jpeg"}),
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(func(next http.Handler) http.Handler { return compress(next) })

	jsonOnly := chiMiddleware.AllowContentType("application/json")

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		})

		// Public endpoints
		r.With(jsonOnly).Post("/auth/login", h.Auth.Login)
		r.With(jsonOnly).Post("/auth/verify", h.Auth.Verify)
		r.Get("/download/{photoID}", h.Download.Download)

		// Device endpoints: require a valid bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth(h.Tokens, logger))

			r.With(jsonOnly).Post("/sessions", h.Sessions.Create)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Post("/capture", h.Capture.Capture)
				r.With(chiMiddleware.AllowContentType("multipart/form-data")).Post("/photos", h.Sessions.Upload)
				r.Get("/photos", h.Sessions.List)
				r.With(jsonOnly).Post("/select", h.Sessions.Select)
			})
		})

		// Admin endpoints: require the admin key
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(h.AdminKey))
			r.Use(withRevealCache(h.Reveal))

			r.With(jsonOnly).Post("/devices", h.Admin.CreateDevice)
			r.With(jsonOnly).Post("/devices/active", h.Admin.SetActive)
			r.Get("/devices", h.Admin.ListDevices)
			r.Get("/devices/{deviceID}/password", h.Admin.RevealPassword)
		})
	})

	return r, nil
}

func withRevealCache(c *service.RevealCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c != nil {
				r = r.WithContext(service.WithRevealCache(r.Context(), c))
			}
			next.ServeHTTP(w, r)
		})
	}
}
