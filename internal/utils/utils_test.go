package utils

import (
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithHeaders(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"public x-real-ip", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"private x-real-ip falls through", map[string]string{"X-Real-IP": "10.1.2.3", "X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"first public hop", map[string]string{"X-Forwarded-For": "10.0.0.1, 198.51.100.9, 203.0.113.1"}, "198.51.100.9"},
		{"all private hops", map[string]string{"X-Forwarded-For": "garbage, 192.168.1.5, 10.0.0.2"}, "192.168.1.5"},
		{"no headers", nil, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetRealIP(contextWithHeaders(tt.headers)))
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP(net.ParseIP("172.20.1.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("::1")))
	assert.False(t, IsPrivateIP(net.ParseIP("172.32.0.1")))
	assert.False(t, IsPrivateIP(nil))
}

func TestParseUserAgent(t *testing.T) {
	empty := ParseUserAgent("")
	assert.Equal(t, "unknown", empty.DeviceType)
	assert.Equal(t, "Unknown", empty.Browser)

	desktop := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36")
	assert.Equal(t, "desktop", desktop.DeviceType)
	assert.True(t, strings.HasPrefix(desktop.Browser, "Chrome"))
	assert.False(t, desktop.IsBot)

	phone := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "mobile", phone.DeviceType)

	bot := ParseUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.IsBot)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(MinSecretBytes)
	require.NoError(t, err)
	assert.Len(t, a, 2*MinSecretBytes)

	b, err := GenerateSecret(MinSecretBytes)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = GenerateSecret(8)
	assert.Error(t, err)
}
