package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-Forの先頭", "203.0.113.5, 10.0.0.1", "198.51.100.1", "10.0.0.2:1234", "203.0.113.5"},
		{"X-Forwarded-For単一", "203.0.113.5", "", "10.0.0.2:1234", "203.0.113.5"},
		{"X-Real-IP", "", "198.51.100.1", "10.0.0.2:1234", "198.51.100.1"},
		{"RemoteAddr", "", "", "192.0.2.10:5555", "192.0.2.10"},
		{"RemoteAddr IPv6", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"ポートなしRemoteAddr", "", "", "192.0.2.10", "192.0.2.10"},
		{"空のX-Forwarded-For先頭", " , 10.0.0.1", "198.51.100.1", "10.0.0.2:1234", "198.51.100.1"},
		{"長いX-Forwarded-Forは無視", strings.Repeat("a", 65), "", "10.0.0.2:1234", "10.0.0.2"},
		{"IPでないX-Forwarded-Forは無視", "not-an-ip, 10.0.0.1", "198.51.100.1", "10.0.0.2:1234", "198.51.100.1"},
		{"不正なバイト列のX-Forwarded-Forは無視", "10.0.0.1\xff", "", "10.0.0.2:1234", "10.0.0.2"},
		{"IPでないX-Real-IPは無視", "", "<script>", "10.0.0.2:1234", "10.0.0.2"},
		{"IPv6は正規化", "2001:DB8:0:0::1", "", "10.0.0.2:1234", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP_AlwaysFitsOriginColumn(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Forwarded-For", strings.Repeat("f", 4096))
	req.Header.Set("X-Real-IP", strings.Repeat("0", 4096))

	if got := ClientIP(req); len(got) > 64 {
		t.Errorf("ClientIP() length = %d, want <= 64", len(got))
	}
}
