package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"QLDCwebserver/internal/auth"
	"QLDCwebserver/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	StorePing func(context.Context) error
	Metrics   http.Handler

	Auth         *service.AuthService
	ProfileCodec auth.ProfileCodec
	CookieSecure bool
	TickInterval time.Duration
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	api := &api{
		logger:       logger,
		isProd:       opts.IsProd,
		storePing:    opts.StorePing,
		authSvc:      opts.Auth,
		tickInterval: opts.TickInterval,
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if opts.Metrics != nil {
		publicMux.Handle("GET /metrics", opts.Metrics)
	}

	if api.authSvc == nil {
		apiMux.HandleFunc("POST /v1/auth/login", handleNotImplemented)
		apiMux.HandleFunc("GET /v1/auth/throttle", handleNotImplemented)
		apiMux.HandleFunc("GET /v1/auth/throttle/stream", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /v1/auth/login", api.handleAuthLogin)
		apiMux.HandleFunc("GET /v1/auth/throttle", api.handleThrottleStatus)
		apiMux.HandleFunc("GET /v1/auth/throttle/stream", api.handleThrottleStream)
	}

	var apiHandler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
	apiHandler = NoteProfile(apiHandler)
	apiHandler = auth.EnsureProfile(opts.ProfileCodec, opts.CookieSecure)(apiHandler)

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	storePing func(context.Context) error

	authSvc      *service.AuthService
	tickInterval time.Duration
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.storePing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.storePing(ctx); err != nil {
			a.logger.Warn("healthz: store ping failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
