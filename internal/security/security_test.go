package security

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.blocked, IsBlockedIP(net.ParseIP(tt.ip)))
		})
	}
}

func TestCheckURL(t *testing.T) {
	g := &Guard{}
	ctx := context.Background()

	tests := []struct {
		name string
		url  string
		err  error
	}{
		{"file scheme", "file:///etc/passwd", ErrScheme},
		{"ftp scheme", "ftp://example.com/x.ico", ErrScheme},
		{"no host", "http:///x.ico", ErrEmptyHost},
		{"localhost", "http://localhost/x.ico", ErrBlockedHost},
		{"loopback ip", "http://127.0.0.1:8080/x.ico", ErrBlockedHost},
		{"metadata ip", "http://169.254.169.254/latest", ErrBlockedHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.CheckURL(ctx, tt.url)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	u, err := g.CheckURL(ctx, "https://8.8.8.8/favicon.ico")
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8", u.Hostname())
}

func TestCheckURL_AllowPrivate(t *testing.T) {
	g := &Guard{AllowPrivate: true}
	u, err := g.CheckURL(context.Background(), "http://127.0.0.1:1234/a.png")
	require.NoError(t, err)
	assert.Equal(t, "1234", u.Port())

	_, err = g.CheckURL(context.Background(), "gopher://127.0.0.1/")
	assert.ErrorIs(t, err, ErrScheme)
}

func TestDialContext_BlocksLoopback(t *testing.T) {
	g := &Guard{}
	_, err := g.DialContext(context.Background(), "tcp", "127.0.0.1:80")
	assert.ErrorIs(t, err, ErrBlockedHost)
}

func TestLooksLikeURL(t *testing.T) {
	assert.True(t, LooksLikeURL("https://example.com/a.ico"))
	assert.True(t, LooksLikeURL("HTTP://example.com/a.ico"))
	assert.False(t, LooksLikeURL("./favicon.ico"))
	assert.False(t, LooksLikeURL("C:\\icons\\a.ico"))
}
