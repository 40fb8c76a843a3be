package shortener

import (
	"strings"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://example.com", want: "https://example.com"},
		{in: "https://example.com/", want: "https://example.com"},
		{in: "https://example.com///", want: "https://example.com"},
		{in: "  https://example.com/path/  ", want: "https://example.com/path"},
		{in: "https://example.com/a?q=1", want: "https://example.com/a?q=1"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "https url", url: "https://example.com"},
		{name: "http url with path and query", url: "http://example.com/a/b?c=d"},
		{name: "subdomain with port", url: "https://api.example.co.uk:8443/v1"},
		{name: "localhost", url: "http://localhost:3000"},
		{name: "ipv4 host", url: "http://127.0.0.1:8080/health"},
		{name: "ipv6 host", url: "http://[::1]:8080"},
		{name: "underscore in label", url: "https://my_service.internal.example"},
		{name: "empty", url: "", wantErr: "url is required"},
		{name: "too long", url: "https://example.com/" + strings.Repeat("a", MaxURLLength), wantErr: "url too long"},
		{name: "embedded space", url: "https://exa mple.com", wantErr: "whitespace"},
		{name: "no scheme", url: "example.com", wantErr: "scheme"},
		{name: "ftp scheme", url: "ftp://example.com", wantErr: "http or https"},
		{name: "javascript scheme", url: "javascript:alert(1)", wantErr: "http or https"},
		{name: "no host", url: "https://", wantErr: "host"},
		{name: "single label host", url: "https://intranet", wantErr: "host is invalid"},
		{name: "label starts with dash", url: "https://-bad.example.com", wantErr: "host is invalid"},
		{name: "empty label", url: "https://bad..example.com", wantErr: "host is invalid"},
		{name: "illegal character", url: "https://bad!.example.com", wantErr: "host is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateURL(%q) unexpected error: %v", tt.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateURL(%q) expected error containing %q, got nil", tt.url, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateURL(%q) error = %q, want it to contain %q", tt.url, err, tt.wantErr)
			}
		})
	}
}
