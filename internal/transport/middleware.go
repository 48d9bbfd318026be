package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/internal/observability"
	"github.com/pitabwire/callcenter/model"
)

// Headers the screens forward to the backend on the operator's behalf.
const (
	HeaderCSRFToken     = "X-CSRFToken"
	HeaderCorrelationID = "X-Correlation-Id"
)

// maxCorrelationID bounds inbound correlation IDs; longer or non-printable
// values are replaced.
const maxCorrelationID = 128

type (
	correlationKey struct{}
	claimsKey      struct{}
)

// CorrelationIDFrom returns the request's correlation ID.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// WithClaims stores verified token claims in ctx.
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims stored by WithClaims.
func ClaimsFrom(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsKey{}).(map[string]any)
	return claims
}

// RecoverPanics turns a panicking handler into a 500 envelope.
func RecoverPanics(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				switch rec {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("correlation_id", CorrelationIDFrom(r.Context())),
					zap.Stack("stack"),
				)
				WriteError(w, model.NewInternalError())
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflights and decorates responses for the configured origins.
// Requests from other origins pass through undecorated.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	decorate := map[string]string{
		"Access-Control-Allow-Methods":     strings.Join(cfg.AllowedMethods, ", "),
		"Access-Control-Allow-Headers":     strings.Join(cfg.AllowedHeaders, ", "),
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Max-Age":           strconv.Itoa(cfg.MaxAge),
		"Access-Control-Expose-Headers":    HeaderCorrelationID,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
					for k, v := range decorate {
						h.Set(k, v)
					}
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Correlation propagates X-Correlation-Id, minting one when the caller sent
// none or an unusable one. The ID is echoed on the response and later
// forwarded to the backend.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if !usableCorrelationID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func usableCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationID {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// securityHeaders are set on every response. Screen views carry operator
// data, so nothing may be cached.
var securityHeaders = [][2]string{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Cache-Control", "no-store"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
}

// SecurityHeaders sets securityHeaders.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, kv := range securityHeaders {
			w.Header().Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// OperatorContext builds the model.RequestContext of the operator from the
// verified claims and the inbound headers. The CSRF token and cookies are
// kept verbatim so the screen's backend calls authenticate as the operator.
func OperatorContext(cfg config.IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := ClaimsFrom(ctx)
			rctx := &model.RequestContext{
				SubjectID:     stringClaim(claims, "sub"),
				Username:      stringClaim(claims, cfg.UsernameClaim),
				DisplayName:   stringClaim(claims, cfg.DisplayNameClaim),
				Email:         stringClaim(claims, "email"),
				Roles:         rolesClaim(claims),
				Claims:        claims,
				CSRFToken:     r.Header.Get(HeaderCSRFToken),
				SessionCookie: r.Header.Get("Cookie"),
				CorrelationID: CorrelationIDFrom(ctx),
				TraceID:       observability.TraceIDFromContext(ctx),
				Locale:        r.Header.Get("Accept-Language"),
			}
			next.ServeHTTP(w, r.WithContext(model.WithRequestContext(ctx, rctx)))
		})
	}
}

// HandlerTimeout bounds each request by d. Zero leaves requests unbounded.
func HandlerTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog puts the operator-tagged logger in the request context and writes
// one entry per request: error for 5xx, warn for 4xx, info otherwise.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			begin := time.Now()
			log := observability.RequestLogger(r.Context(), logger)
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(observability.WithLogger(r.Context(), log)))

			level := zap.InfoLevel
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = zap.ErrorLevel
			case rec.status >= http.StatusBadRequest:
				level = zap.WarnLevel
			}
			log.Log(level, "request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(begin)),
			)
		})
	}
}

// recorder remembers the first status written and counts body bytes.
type recorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *recorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status, w.wroteHeader = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func stringClaim(claims map[string]any, key string) string {
	if key == "" {
		return ""
	}
	s, _ := claims[key].(string)
	return s
}

// rolesClaim reads the "roles" claim, skipping non-string entries.
func rolesClaim(claims map[string]any) []string {
	raw, ok := claims["roles"].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
