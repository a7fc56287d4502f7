package service

import (
	"net/http"
	"sort"
	"strings"
)

// multiValueSeparator joins repeated values of the same header into one
// value, for upstreams that reject repeated header lines.
const multiValueSeparator = "; "

// TranslateHeaders builds the outbound header set for a forwarded request.
//
// Inbound values are grouped case-insensitively by name and repeated values
// collapsed into one, preserving their original order. Any inbound Host entry
// is dropped (the forwarder carries the original host on the request itself),
// and the forwarding-chain headers are set: X-Real-IP to the connection's
// client address, X-Forwarded-For extended with the client address,
// X-Forwarded-Proto to the inbound scheme, and X-Forwarded-Host to the host
// the client requested.
func TranslateHeaders(in http.Header, clientIP, scheme, originalHost string) http.Header {
	// Server-parsed headers arrive canonicalized, but hand-built ones may
	// carry the same name under several casings; group before joining.
	// Source names are visited in sorted order so the joined value is
	// deterministic even then; within one casing the value order is kept.
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	grouped := make(http.Header, len(in))
	for _, name := range names {
		key := http.CanonicalHeaderKey(name)
		grouped[key] = append(grouped[key], in[name]...)
	}

	out := make(http.Header, len(grouped)+4)
	for name, vals := range grouped {
		if len(vals) == 0 {
			continue
		}
		out[name] = []string{strings.Join(vals, multiValueSeparator)}
	}

	out.Del("Host")

	// Extend an existing forwarding chain rather than replace it. A
	// present-but-empty inbound value passes through unchanged; an absent
	// one yields the client address alone.
	if vals, ok := out["X-Forwarded-For"]; ok {
		if chain := vals[0]; chain != "" {
			out.Set("X-Forwarded-For", chain+" "+clientIP)
		}
	} else {
		out.Set("X-Forwarded-For", clientIP)
	}

	out.Set("X-Real-Ip", clientIP)
	out.Set("X-Forwarded-Proto", scheme)
	out.Set("X-Forwarded-Host", originalHost)

	return out
}
