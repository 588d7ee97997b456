package model

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRemoteURL(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		allowPrivateIP bool
		wantErr        error
	}{
		{"valid HTTP URL", "http://example.com/services/feeds", false, nil},
		{"valid HTTPS URL", "https://example.com", false, nil},
		{"valid URL with port", "https://example.com:8080", false, nil},
		{"uppercase scheme", "HTTP://EXAMPLE.COM", false, nil},

		{"file scheme", "file:///etc/passwd", false, ErrUnsupportedScheme},
		{"ftp scheme", "ftp://example.com/file.txt", false, ErrUnsupportedScheme},
		{"javascript scheme", "javascript:alert('xss')", false, ErrUnsupportedScheme},
		{"missing scheme", "example.com/feed", false, ErrUnsupportedScheme},

		{"empty URL", "", false, ErrEmptyURL},
		{"missing host", "http:///feed", false, ErrMissingHost},
		{"space in host", "http://exa mple.com/feed", false, ErrInvalidURL},

		{"localhost", "http://localhost/feed", false, ErrPrivateIPBlocked},
		{"loopback", "http://127.0.0.1:8080", false, ErrPrivateIPBlocked},
		{"10.x range", "http://10.0.0.1/feed", false, ErrPrivateIPBlocked},
		{"192.168.x range", "http://192.168.1.1/feed", false, ErrPrivateIPBlocked},
		{"172.16.x range", "http://172.16.0.1/feed", false, ErrPrivateIPBlocked},
		{"link-local", "http://169.254.0.1/feed", false, ErrPrivateIPBlocked},
		{"IPv6 loopback", "http://[::1]/feed", false, ErrPrivateIPBlocked},
		{"IPv6 unique local", "http://[fd00::1]/feed", false, ErrPrivateIPBlocked},
		{"public IP", "http://8.8.8.8/feed", false, nil},

		{"localhost allowed", "http://localhost/feed", true, nil},
		{"loopback allowed", "http://127.0.0.1:8080", true, nil},
		{"scheme still checked when private allowed", "file:///etc/passwd", true, ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRemoteURL(tt.url, tt.allowPrivateIP)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error for URL %q: %v", tt.url, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRemoteURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func FuzzValidateRemoteURL(f *testing.F) {
	f.Add("https://example.com/feed.xml", false)
	f.Add("http://localhost/feed.xml", false)
	f.Add("http://[::1]/atom", true)
	f.Add("file:///etc/passwd", true)
	f.Add("http://localhost@example.com/feed", false)
	f.Add("://", false)

	f.Fuzz(func(t *testing.T, rawURL string, allowPrivateIPs bool) {
		err := ValidateRemoteURL(rawURL, allowPrivateIPs)
		if err != nil {
			return
		}
		lower := strings.ToLower(rawURL)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			t.Errorf("accepted non-HTTP URL %q", rawURL)
		}
	})
}
