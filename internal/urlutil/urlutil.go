// Package urlutil provides URL parsing and construction helpers for the
// OAuth redirect flow. Redirect URLs are security sensitive: query values
// must be percent-encoded (space as %20, never +) and the output must be
// stable for a given parameter map.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrMalformedURL indicates a URL without a scheme or host.
var ErrMalformedURL = errors.New("malformed url")

// HostAndScheme parses an absolute URL and returns its hostname and scheme.
// The port, path, query, and fragment are ignored.
//
// Example:
//
//	HostAndScheme("http://localhost:8000?a=b") // Returns: "localhost", "http"
func HostAndScheme(rawURL string) (host, scheme string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("%w: missing scheme or host in %q", ErrMalformedURL, rawURL)
	}
	return u.Hostname(), u.Scheme, nil
}

// BuildURL appends the given parameters to base as a query string.
// Values are percent-encoded per RFC 3986 (space becomes %20, not +).
// Parameters are appended in sorted key order so the result is stable
// for the same input map. Keys with empty values are still included,
// since OAuth requires echoing parameters like state verbatim.
func BuildURL(base string, params map[string]string) string {
	if len(params) == 0 {
		return base
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	for _, k := range keys {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(escapeQueryValue(params[k]))
		sep = "&"
	}
	return b.String()
}

// escapeQueryValue percent-encodes a query value. QueryEscape encodes
// space as "+", which some OAuth clients reject in redirect URLs; %20 is
// valid in both form and URI encodings.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
