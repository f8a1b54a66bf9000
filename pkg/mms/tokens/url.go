package tokens

import (
	"net/http"
	"net/url"
	"strings"
)

// ApplicationURL derives the base URL of the application from the request.
// A non-empty override wins.
func ApplicationURL(r *http.Request, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

// CallbackURL builds the link mailed to the user
func CallbackURL(baseURL, path, raw string) string {
	return strings.TrimRight(baseURL, "/") + path + "?token=" + url.QueryEscape(raw)
}
