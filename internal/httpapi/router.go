// Package httpapi is the HTTP surface: chat endpoints streaming fragments as
// server-sent events, health and metrics.
package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anatolykoptev/huddle/internal/chat"
)

// Options configures the router.
type Options struct {
	Engine  *chat.Engine
	Version string
	// LogWriter receives JSON access logs. Nil means io.Discard.
	LogWriter io.Writer
}

// NewRouter builds the chi router. Callers mount /mcp and /a2a on the result.
func NewRouter(opts Options) *chi.Mux {
	if opts.LogWriter == nil {
		opts.LogWriter = io.Discard
	}
	h := &handlers{engine: opts.Engine, version: opts.Version}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(accessLog(opts.LogWriter))
		r.Post("/chats", h.createChat)
		r.Get("/chats/{chatID}", h.getChat)
		r.Delete("/chats/{chatID}", h.deleteChat)
		r.Post("/chats/{chatID}/messages", h.postMessage)
		r.Post("/chats/{chatID}/purchase", h.postPurchase)
	})
	return r
}

// accessLog logs one JSON line per request.
func accessLog(w io.Writer) func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{})),
		&httplog.Options{
			Level:              slog.LevelInfo,
			Schema:             httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogRequestBody:     func(*http.Request) bool { return false },
			LogResponseBody:    func(*http.Request) bool { return false },
			LogRequestHeaders:  []string{},
			LogResponseHeaders: []string{},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				rc := chi.RouteContext(req.Context())
				route := req.URL.Path
				if rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("route", route),
					slog.String("path", req.URL.Path),
				}
			},
		},
	)
}
