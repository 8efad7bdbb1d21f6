// Package credentials carries per-request security headers from the inbound
// HTTP boundary to outbound tool calls.
//
// Values live only in the request's context.Context. They never enter agent
// session state, so the model cannot read them.
package credentials

import (
	"context"
	"net/http"
	"strings"
)

// ExternalTokenHeader is the inbound header forwarded to tool servers in legacy mode.
const ExternalTokenHeader = "X-External-Token"

// Header is a captured header value together with the name it arrived under.
type Header struct {
	Name  string
	Value string
}

// Credentials is an immutable snapshot of the security-relevant request headers.
type Credentials struct {
	token   string
	headers map[string]Header
}

// New builds credentials from a token and a set of headers. Header keys are
// matched case-insensitively, the last value for a name wins.
func New(token string, headers map[string]string) *Credentials {
	c := &Credentials{token: token, headers: make(map[string]Header, len(headers))}
	for name, value := range headers {
		c.headers[strings.ToLower(name)] = Header{Name: name, Value: value}
	}
	return c
}

// FromHTTPHeader snapshots the given header names from h. An empty names list
// captures every header.
func FromHTTPHeader(h http.Header, names ...string) *Credentials {
	c := &Credentials{token: h.Get(ExternalTokenHeader), headers: map[string]Header{}}
	if len(names) == 0 {
		for name, values := range h {
			if len(values) == 0 {
				continue
			}
			c.headers[strings.ToLower(name)] = Header{Name: name, Value: values[0]}
		}
		return c
	}
	for _, name := range names {
		if v := h.Get(name); v != "" {
			c.headers[strings.ToLower(name)] = Header{Name: name, Value: v}
		}
	}
	return c
}

// Token returns the external token, or "" when none was sent.
func (c *Credentials) Token() string {
	if c == nil {
		return ""
	}
	return c.token
}

// Header looks up a captured header case-insensitively.
func (c *Credentials) Header(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	h, ok := c.headers[strings.ToLower(name)]
	if !ok || h.Value == "" {
		return "", false
	}
	return h.Value, true
}

// Len reports how many headers were captured.
func (c *Credentials) Len() int {
	if c == nil {
		return 0
	}
	return len(c.headers)
}

// IsZero reports whether nothing was captured.
func (c *Credentials) IsZero() bool {
	return c.Token() == "" && c.Len() == 0
}

type credentialsKeyType struct{}

var credentialsKey = credentialsKeyType{}

// WithCredentials returns a copy of ctx carrying c.
func WithCredentials(ctx context.Context, c *Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, c)
}

// FromContext returns the credentials stored in ctx. It never returns nil:
// a context without credentials yields an empty value.
func FromContext(ctx context.Context) *Credentials {
	if ctx != nil {
		if c, ok := ctx.Value(credentialsKey).(*Credentials); ok && c != nil {
			return c
		}
	}
	return &Credentials{}
}

// Without returns a context that keeps ctx's cancellation but reads as having no credentials.
// Long-lived connections are opened with it so that handshakes never carry a caller's headers.
func Without(ctx context.Context) context.Context {
	return context.WithValue(ctx, credentialsKey, (*Credentials)(nil))
}
