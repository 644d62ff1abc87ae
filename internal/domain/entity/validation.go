package entity

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// maxMediaURLLength bounds media URLs taken from upstream posts.
const maxMediaURLLength = 2048

// lookupTimeout bounds the DNS lookup of a media host.
const lookupTimeout = 5 * time.Second

// ValidatePost checks the fields the relay depends on: a non-empty ID (the
// dedup key) and a creation time (the delivery order).
func ValidatePost(p Post) error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Field: "id", Message: "post id is required"}
	}
	if p.CreatedAt.IsZero() {
		return &ValidationError{Field: "created_at", Message: "post created_at is required"}
	}
	return nil
}

// ValidateMediaURL rejects media URLs the notifier must not download: anything
// that is not http(s), and hosts resolving to loopback, private or link-local
// addresses. Media URLs come from untrusted post content.
func ValidateMediaURL(rawURL string) error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Field: "media_url", Message: fmt.Sprintf(format, args...)}
	}

	switch {
	case rawURL == "":
		return invalid("url is required")
	case len(rawURL) > maxMediaURLLength:
		return invalid("url must not exceed %d characters", maxMediaURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return invalid("malformed url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url must use http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return invalid("url has no host")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isInternalAddr(addr) {
			return invalid("url points to internal address %s", addr)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		// Unresolvable hosts fail at download time.
		return nil
	}
	for _, addr := range addrs {
		if isInternalAddr(addr) {
			return invalid("host %s resolves to internal address %s", host, addr)
		}
	}
	return nil
}

func isInternalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}
