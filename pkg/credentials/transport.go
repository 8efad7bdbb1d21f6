package credentials

import (
	"net/http"
)

// Transport sets the headers returned by Provider on every outgoing request.
// The provider sees the request's own context, so concurrent calls stay isolated.
type Transport struct {
	Base     http.RoundTripper
	Provider HeaderProvider
}

// NewTransport wraps base, falling back to http.DefaultTransport.
func NewTransport(base http.RoundTripper, provider HeaderProvider) *Transport {
	return &Transport{Base: base, Provider: provider}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Provider == nil {
		return base.RoundTrip(req)
	}
	headers := t.Provider(req.Context())
	if len(headers) == 0 {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	for name, value := range headers {
		// Assign the map directly to keep the configured casing on the wire.
		out.Header.Del(name)
		out.Header[name] = []string{value}
	}
	return base.RoundTrip(out)
}
