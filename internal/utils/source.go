package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateHTTPURL checks that src is an absolute http or https URL with a host.
func ValidateHTTPURL(src string) error {
	u, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", src, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return fmt.Errorf("invalid URL %q: missing scheme (expected http or https)", src)
	default:
		return fmt.Errorf("unsupported URL scheme %q in %q", u.Scheme, src)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", src)
	}
	return nil
}
