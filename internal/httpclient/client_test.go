package httpclient

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	client := New(30*time.Second, Options{})

	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, 10, client.maxRedirects)
	assert.False(t, client.allowPrivate)
	assert.Equal(t, []string{"http", "https"}, client.allowedSchemes)
}

func TestValidateURL(t *testing.T) {
	client := New(30*time.Second, Options{})

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "https", url: "https://openrouter.ai/api/v1/chat/completions"},
		{name: "http", url: "http://example.com"},
		{name: "file scheme", url: "file:///etc/passwd", errContains: "scheme"},
		{name: "gopher scheme", url: "gopher://example.com", errContains: "scheme"},
		{name: "localhost", url: "http://localhost/admin", errContains: "localhost"},
		{name: "localhost subdomain", url: "http://api.localhost/", errContains: "localhost"},
		{name: "loopback", url: "http://127.0.0.1:8080", errContains: "private IP"},
		{name: "rfc1918", url: "http://192.168.1.10/", errContains: "private IP"},
		{name: "metadata", url: "http://169.254.169.254/latest/meta-data", errContains: "private IP"},
		{name: "ipv6 loopback", url: "http://[::1]/", errContains: "private IP"},
		{name: "credentials", url: "http://evil.com@localhost/", errContains: "credentials"},
		{name: "no host", url: "http:///path", errContains: "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateURL_AllowPrivate(t *testing.T) {
	client := New(time.Second, Options{AllowPrivate: true})

	_, err := client.ValidateURL("http://localhost:11434/v1/chat/completions")
	assert.NoError(t, err)

	_, err = client.ValidateURL("ftp://localhost/")
	assert.Error(t, err)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"172.32.0.1", false},
		{"8.8.8.8", false},
		{"fd00::1", true},
		{"fe80::1", true},
		{"2001:db8::1", true},
		{"2606:4700:4700::1111", false},
		{"::ffff:10.0.0.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}

func TestDo_BlocksBeforeDialing(t *testing.T) {
	client := New(time.Second, Options{})
	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF protection")
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "qntx-caption/test", r.Header.Get("User-Agent"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	client := New(time.Second, Options{AllowPrivate: true, UserAgent: "qntx-caption/test"})
	var out struct{ Echo string }
	err := client.PostJSON(context.Background(), srv.URL, http.Header{"Authorization": {"Bearer k"}},
		map[string]string{"msg": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Echo)
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	client := Wrap(srv.Client())
	err := client.PostJSON(context.Background(), srv.URL, nil, struct{}{}, nil)
	require.Error(t, err)

	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
	assert.Contains(t, se.Body, "slow down")
}
