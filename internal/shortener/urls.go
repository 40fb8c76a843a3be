package shortener

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// MaxURLLength is the longest target URL accepted.
const MaxURLLength = 2048

// NormalizeURL trims surrounding whitespace and strips every trailing slash.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// ValidateURL reports whether u is an absolute http or https URL with a usable host.
// It expects u to be normalized already.
func ValidateURL(u string) error {
	if u == "" {
		return errors.New("url is required")
	}
	if len(u) > MaxURLLength {
		return errors.New("url too long (max 2048 characters)")
	}
	if strings.ContainsAny(u, " \t\r\n") {
		return errors.New("url must not contain whitespace")
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return errors.New("invalid url format")
	}
	if parsed.Scheme == "" {
		return errors.New("url must include scheme (http or https)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("url must include host")
	}
	if !validHost(parsed.Hostname()) {
		return errors.New("url host is invalid")
	}
	return nil
}

// validHost accepts IP literals, localhost, and dotted names whose labels are
// letters, digits, dashes and underscores.
func validHost(host string) bool {
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil || strings.EqualFold(host, "localhost") {
		return true
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			case c == '-' || c == '_':
			default:
				return false
			}
		}
	}
	return true
}
