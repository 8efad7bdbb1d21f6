package credentials

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextDefaultsToEmpty(t *testing.T) {
	c := FromContext(context.Background())
	require.NotNil(t, c)
	assert.Equal(t, "", c.Token())
	assert.True(t, c.IsZero())

	_, ok := c.Header("Authorization")
	assert.False(t, ok)

	var nilCreds *Credentials
	assert.Equal(t, "", nilCreds.Token())
	assert.Equal(t, 0, nilCreds.Len())
}

func TestWithCredentialsRoundTrip(t *testing.T) {
	ctx := WithCredentials(context.Background(), New("secret", map[string]string{"Authorization": "Bearer x"}))

	c := FromContext(ctx)
	assert.Equal(t, "secret", c.Token())

	v, ok := c.Header("authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer x", v)

	assert.True(t, FromContext(Without(ctx)).IsZero(), "Without hides the parent's credentials")
}

func TestFromHTTPHeader(t *testing.T) {
	h := http.Header{}
	h.Set("x-external-token", "tok")
	h.Set("Authorization", "Bearer abc")
	h.Set("X-Tenant-Id", "t1")

	all := FromHTTPHeader(h)
	assert.Equal(t, "tok", all.Token())
	assert.Equal(t, 3, all.Len())

	filtered := FromHTTPHeader(h, "AUTHORIZATION", "X-Missing")
	assert.Equal(t, "tok", filtered.Token(), "the token is always captured")
	assert.Equal(t, 1, filtered.Len())
	v, ok := filtered.Header("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer abc", v)
}

func TestHeaderProviderIntersection(t *testing.T) {
	ctx := WithCredentials(context.Background(), New("", map[string]string{
		"authorization": "Bearer abc",
		"X-TENANT-ID":   "tenant-7",
		"X-Other":       "must-not-leak",
	}))

	tests := []struct {
		name  string
		allow []string
		want  map[string]string
	}{
		{
			name:  "configured casing wins",
			allow: []string{"Authorization", "x-tenant-id"},
			want:  map[string]string{"Authorization": "Bearer abc", "x-tenant-id": "tenant-7"},
		},
		{
			name:  "absent names are omitted",
			allow: []string{"Authorization", "X-Request-Id"},
			want:  map[string]string{"Authorization": "Bearer abc"},
		},
		{
			name:  "empty allow list forwards nothing",
			allow: []string{},
			want:  map[string]string{},
		},
		{
			name:  "duplicates collapse to first casing",
			allow: []string{"X-Tenant-Id", "x-tenant-id"},
			want:  map[string]string{"X-Tenant-Id": "tenant-7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewHeaderProvider(tt.allow)(ctx)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeaderProviderWithoutCredentials(t *testing.T) {
	got := NewHeaderProvider([]string{"Authorization"})(context.Background())
	assert.Empty(t, got)
}

func TestHeaderProviderTokenInAllowList(t *testing.T) {
	ctx := WithCredentials(context.Background(), New("tok", nil))
	got := NewHeaderProvider([]string{"x-external-token"})(ctx)
	assert.Equal(t, map[string]string{"x-external-token": "tok"}, got)
}

func TestLegacyHeaderProvider(t *testing.T) {
	p := LegacyHeaderProvider()

	assert.Equal(t, map[string]string{"X-External-Token": "tok"},
		p(WithCredentials(context.Background(), New("tok", nil))))

	got := p(context.Background())
	assert.Empty(t, got)
	_, present := got[ExternalTokenHeader]
	assert.False(t, present, "no empty-string header when the token is missing")

	other := p(WithCredentials(context.Background(), New("", map[string]string{"Authorization": "x"})))
	assert.Empty(t, other, "legacy mode never forwards other headers")
}

func TestProviderFor(t *testing.T) {
	ctx := WithCredentials(context.Background(), New("tok", map[string]string{"Authorization": "x"}))

	assert.Equal(t, map[string]string{"X-External-Token": "tok"}, ProviderFor(nil)(ctx))
	assert.Equal(t, map[string]string{"Authorization": "x"}, ProviderFor([]string{"Authorization"})(ctx))
}
