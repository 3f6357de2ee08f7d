// Package router wraps a chi mux with method helpers and colored request
// logging.
package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// --- ANSI color codes ---
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type HandlerFunc = http.HandlerFunc

type Router struct {
	mux    chi.Router
	log    logrus.FieldLogger
	routes []string // METHOD path, registration order
}

// New returns a router that logs every request to log (the standard logger
// when nil). Colors are used only with a text formatter.
func New(log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{mux: chi.NewRouter(), log: log}
	r.mux.Use(middleware.RequestID, r.logRequests, middleware.Recoverer)
	r.mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})
	r.mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	})
	return r
}

func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := r.log.WithFields(logrus.Fields{
			"method":     req.Method,
			"path":       req.URL.Path,
			"status":     status,
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(req.Context()),
		})
		msg := methodColor(req.Method) + req.Method + colorReset + " " + req.URL.Path + " " + statusColor(status) + http.StatusText(status) + colorReset
		if lg, ok := r.log.(*logrus.Logger); ok {
			if _, text := lg.Formatter.(*logrus.TextFormatter); !text {
				msg = req.Method + " " + req.URL.Path
			}
		}
		switch {
		case status >= 500:
			entry.Error(msg)
		case status >= 400:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	})
}

// --- Register paths ---
func (r *Router) register(method, path string, handler http.HandlerFunc) {
	r.mux.MethodFunc(method, path, handler)
	r.routes = append(r.routes, method+" "+path)
}

func (r *Router) GET(path string, handler http.HandlerFunc)   { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler http.HandlerFunc)  { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler http.HandlerFunc)   { r.register(http.MethodPut, path, handler) }
func (r *Router) PATCH(path string, handler http.HandlerFunc) { r.register(http.MethodPatch, path, handler) }
func (r *Router) DELETE(path string, handler http.HandlerFunc) {
	r.register(http.MethodDelete, path, handler)
}

// Handle mounts h for every method under pattern, e.g. "/swagger/*".
func (r *Router) Handle(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
	r.routes = append(r.routes, "* "+pattern)
}

// Routes lists registered routes for diagnostics and tests.
func (r *Router) Routes() []string {
	return append([]string(nil), r.routes...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Param returns a URL parameter such as {id}.
func Param(req *http.Request, name string) string {
	return chi.URLParam(req, name)
}

// --- Start server ---

// Start serves until ctx is cancelled, then shuts down gracefully.
func (r *Router) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		r.log.Infof("server started on %shttp://localhost%s%s", colorGreen, addr, colorReset)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Color helpers ---
func statusColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func methodColor(method string) string {
	switch method {
	case http.MethodGet:
		return colorGreen
	case http.MethodPost:
		return colorBlue
	case http.MethodPut, http.MethodPatch:
		return colorYellow
	case http.MethodDelete:
		return colorRed
	default:
		return colorCyan
	}
}
