package credentials

import (
	"log/slog"
	"net/http"
)

type interceptorConfig struct {
	captureAll bool
	names      []string
	logger     *slog.Logger
}

// InterceptorOption configures Interceptor.
type InterceptorOption func(*interceptorConfig)

// WithCaptureHeaders captures the named headers in addition to X-External-Token.
func WithCaptureHeaders(names ...string) InterceptorOption {
	return func(c *interceptorConfig) {
		c.names = append(c.names, names...)
	}
}

// WithCaptureAllHeaders captures every inbound header.
func WithCaptureAllHeaders() InterceptorOption {
	return func(c *interceptorConfig) {
		c.captureAll = true
	}
}

// WithInterceptorLogger sets the logger used for debug output.
func WithInterceptorLogger(l *slog.Logger) InterceptorOption {
	return func(c *interceptorConfig) {
		c.logger = l
	}
}

// Interceptor captures request credentials into the request context before
// the wrapped handler runs. Requests without credentials pass through unchanged.
func Interceptor(opts ...InterceptorOption) func(http.Handler) http.Handler {
	cfg := &interceptorConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var c *Credentials
			switch {
			case cfg.captureAll:
				c = FromHTTPHeader(r.Header)
			case len(cfg.names) > 0:
				c = FromHTTPHeader(r.Header, cfg.names...)
			default:
				c = New(r.Header.Get(ExternalTokenHeader), nil)
			}
			if c.IsZero() {
				next.ServeHTTP(w, r)
				return
			}
			cfg.logger.DebugContext(r.Context(), "captured request credentials",
				"token", c.Token() != "", "headers", c.Len())
			next.ServeHTTP(w, r.WithContext(WithCredentials(r.Context(), c)))
		})
	}
}
