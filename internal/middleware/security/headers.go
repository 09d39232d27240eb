// Package security sets browser security headers on every response.
package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy selects the security headers a server sends.
type Policy struct {
	// ContentSecurity is sent as Content-Security-Policy.
	ContentSecurity string
	FrameOptions    string
	Referrer        string
	Permissions     string

	// HSTS is the Strict-Transport-Security max-age, sent only over TLS.
	HSTS           time.Duration
	HSTSSubdomains bool

	// NoStorePrefixes lists path prefixes whose responses carry tenant ledger
	// data and must not be kept by browsers or shared proxies.
	NoStorePrefixes []string
}

// DefaultPolicy suits the script-free dashboard page and the JSON API.
func DefaultPolicy() Policy {
	return Policy{
		ContentSecurity: strings.Join([]string{
			"default-src 'self'",
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data:",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		}, "; "),
		FrameOptions:    "DENY",
		Referrer:        "no-referrer",
		Permissions:     "geolocation=(), camera=(), microphone=(), payment=()",
		HSTS:            365 * 24 * time.Hour,
		HSTSSubdomains:  true,
		NoStorePrefixes: []string{"/api/", "/tenants/"},
	}
}

type header struct{ name, value string }

// Headers returns middleware applying p. The fixed header set is built once.
func Headers(p Policy) func(http.Handler) http.Handler {
	fixed := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-origin"},
	}
	for _, h := range []header{
		{"Content-Security-Policy", p.ContentSecurity},
		{"X-Frame-Options", p.FrameOptions},
		{"Referrer-Policy", p.Referrer},
		{"Permissions-Policy", p.Permissions},
	} {
		if h.value != "" {
			fixed = append(fixed, h)
		}
	}

	var hsts string
	if p.HSTS > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(p.HSTS/time.Second), 10)
		if p.HSTSSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := w.Header()
			for _, h := range fixed {
				out.Set(h.name, h.value)
			}
			if hsts != "" && r.TLS != nil {
				out.Set("Strict-Transport-Security", hsts)
			}
			for _, prefix := range p.NoStorePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					out.Set("Cache-Control", "no-store")
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
