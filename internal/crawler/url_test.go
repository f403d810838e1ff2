package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeResolvesAndCanonicalizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{"relative path", "http://a.example/x/y", "z", "http://a.example/x/z"},
		{"absolute path", "http://a.example/x/y", "/z", "http://a.example/z"},
		{"protocol relative with fragment", "http://a/x", "//a/y#frag", "http://a/y"},
		{"fragment stripped", "https://a.example/", "/page#section-2", "https://a.example/page"},
		{"already absolute", "http://a.example/", "https://b.example/p?q=1", "https://b.example/p?q=1"},
		{"surrounding whitespace", "http://a.example/", "  /spaced  ", "http://a.example/spaced"},
		{"fragment only resolves to base", "http://a.example/page", "#top", "http://a.example/page"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.base, tc.href)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	first, err := Normalize("http://a.example/dir/", "../other/page?b=2&a=1#frag")
	require.NoError(t, err)

	second, err := Normalize(first, first)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestNormalizeRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		href string
	}{
		{"empty href", "http://a.example/", ""},
		{"whitespace href", "http://a.example/", "   "},
		{"mailto", "http://a.example/", "mailto:x@y.com"},
		{"mailto mixed case", "http://a.example/", "MailTo:x@y.com"},
		{"tel", "http://a.example/", "tel:+15551234567"},
		{"javascript", "http://a.example/", "javascript:void(0)"},
		{"data uri", "http://a.example/", "data:text/plain;base64,aGk="},
		{"ftp result", "http://a.example/", "ftp://files.example/pub"},
		{"relative against ftp base", "ftp://files.example/pub", "readme.txt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tc.base, tc.href)
			require.ErrorIs(t, err, ErrUnsupportedLink)
		})
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()

	require.True(t, SameHost("https://Example.COM/path", "example.com"))
	require.True(t, SameHost("http://example.com:8080/x", "example.com:8080"))
	require.False(t, SameHost("https://other.com/p", "example.com"))
	require.False(t, SameHost("https://sub.example.com/p", "example.com"))
	require.False(t, SameHost("://not a url", "example.com"))
}
