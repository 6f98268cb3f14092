package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HTTPObserver records request metrics by route pattern.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// AccessLog writes one structured log entry per request and reports it to
// observer when one is given.
func AccessLog(logger *zap.Logger, observer HTTPObserver) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			r, info := withRequestInfo(r)

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			if observer != nil {
				observer.ObserveHTTP(r.Method, route, status, elapsed)
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("remote_addr", clientIP(r)),
				zap.String("user_agent", r.UserAgent()),
			}
			if caller, ok := info.authenticated(); ok {
				fields = append(fields, zap.String("org_id", caller.OrganizationID), zap.Bool("admin", caller.IsAdmin))
			}

			switch {
			case status >= 500:
				logger.Error("http request", fields...)
			case status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

const requestInfoKey contextKey = "request_info"

// requestInfo carries values resolved by inner middleware back to the
// outer ones, which only see the context they created.
type requestInfo struct {
	mu     sync.Mutex
	caller *domain.Caller
}

func (i *requestInfo) setCaller(c domain.Caller) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.caller = &c
}

func (i *requestInfo) authenticated() (domain.Caller, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.caller == nil {
		return domain.Caller{}, false
	}
	return *i.caller, true
}

func withRequestInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)), info
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
