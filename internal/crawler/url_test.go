package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare host gets root path", input: "https://Example.com", want: "https://example.com/"},
		{name: "default https port stripped", input: "https://example.com:443/info", want: "https://example.com/info"},
		{name: "default http port stripped", input: "http://example.com:80/", want: "http://example.com/"},
		{name: "non-default port kept", input: "https://example.com:8443/info", want: "https://example.com:8443/info"},
		{name: "trailing slash stripped", input: "https://example.com/info/", want: "https://example.com/info"},
		{name: "fragment stripped", input: "https://example.com/info#opening", want: "https://example.com/info"},
		{name: "query preserved", input: "https://example.com/info?lang=de", want: "https://example.com/info?lang=de"},
		{name: "surrounding whitespace trimmed", input: "  https://example.com/  ", want: "https://example.com/"},
		{name: "ftp rejected", input: "ftp://example.com/file", wantErr: true},
		{name: "relative rejected", input: "/info", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameRegistrableDomain(t *testing.T) {
	assert.True(t, sameRegistrableDomain("www.example.com", "example.com"))
	assert.True(t, sameRegistrableDomain("shop.example.com", "www.example.com"))
	assert.True(t, sameRegistrableDomain("example.com:8080", "example.com"))
	assert.False(t, sameRegistrableDomain("example.com", "example.org"))
	// Multi-label public suffixes are not conflated.
	assert.False(t, sameRegistrableDomain("alpha.co.uk", "beta.co.uk"))
	assert.True(t, sameRegistrableDomain("www.alpha.co.uk", "alpha.co.uk"))
}
