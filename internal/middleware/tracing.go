package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"mapsketch/internal/logging"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*
LEARNING: DISTRIBUTED TRACING & OBSERVABILITY

Two kinds of spans come out of the relay:
- one root span per HTTP request (this middleware), including the /ws upgrade
- one span per relayed message (Relay.OnMessage), with room and recipient count

A /ws request does not finish when the upgrade succeeds. The handler keeps
running until the socket closes, so its root span and request log cover the
whole connection. The relay server tags the request with its session id
through BindSession, which lets one log line tie an HTTP request id to the
relay session it became.

When no tracer provider is installed otel hands out no-op spans, so the
helpers below are always safe to call.
*/

var tracer = otel.Tracer("mapsketch")

type ctxKey string

const requestKey ctxKey = "request"

// requestInfo is shared between the middleware and handlers further down
type requestInfo struct {
	id string

	mu        sync.Mutex
	sessionID string
}

// TracingMiddleware opens the root span, assigns a ksuid request id and logs
// the request once the handler returns
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{id: ksuid.New().String()}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
				attribute.String("http.user_agent", r.Header.Get("User-Agent")),
				attribute.String("request.id", info.id),
			),
		)
		defer span.End()

		ctx = context.WithValue(ctx, requestKey, info)
		w.Header().Set("X-Request-ID", info.id)
		rw := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		started := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))
		elapsed := time.Since(started)

		span.SetAttributes(
			attribute.Int("http.status_code", rw.statusCode),
			attribute.Int64("http.response_time_ms", elapsed.Milliseconds()),
		)
		if rw.statusCode >= 400 {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}

		if rw.upgraded {
			sessionID := info.session()
			span.SetAttributes(attribute.String("session.id", sessionID))
			logging.Info().
				Str("request_id", info.id).
				Str("session_id", sessionID).
				Str("remote_addr", r.RemoteAddr).
				Dur("connected_for", elapsed).
				Msg("🔌 WebSocket session ended")
			return
		}

		logging.Debug().
			Str("request_id", info.id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request completed")
	})
}

// ErrorRecoveryMiddleware turns a handler panic into a 500 and records it on the span
func ErrorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			stack := debug.Stack()

			span := trace.SpanFromContext(r.Context())
			span.RecordError(fmt.Errorf("panic: %v", recovered))
			span.SetStatus(codes.Error, "panic recovered")
			span.SetAttributes(
				attribute.String("error.type", "panic"),
				attribute.String("error.stacktrace", string(stack)),
			)

			logging.Error().
				Str("request_id", GetRequestID(r.Context())).
				Interface("panic", recovered).
				Bytes("stack", stack).
				Msg("❌ Panic recovered")

			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware answers preflights for the read-only stats API. WebSocket
// origins are checked by the upgrader, not here.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper records the status code and whether the connection
// was taken over by the WebSocket upgrader
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	upgraded   bool
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, buf, err := hj.Hijack()
	if err == nil {
		w.statusCode = http.StatusSwitchingProtocols
		w.upgraded = true
	}
	return conn, buf, err
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// StartSpan starts a child span of whatever span ctx carries
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddSpanError marks the span in ctx as failed
func AddSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// GetRequestID returns the request id set by TracingMiddleware, or "unknown"
func GetRequestID(ctx context.Context) string {
	if info, ok := ctx.Value(requestKey).(*requestInfo); ok {
		return info.id
	}
	return "unknown"
}

// BindSession records the relay session a request was upgraded into. It is a
// no-op outside TracingMiddleware.
func BindSession(ctx context.Context, sessionID string) {
	if info, ok := ctx.Value(requestKey).(*requestInfo); ok {
		info.mu.Lock()
		info.sessionID = sessionID
		info.mu.Unlock()
	}
}

// SessionID returns the session bound with BindSession
func SessionID(ctx context.Context) string {
	if info, ok := ctx.Value(requestKey).(*requestInfo); ok {
		return info.session()
	}
	return ""
}

func (i *requestInfo) session() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sessionID
}
