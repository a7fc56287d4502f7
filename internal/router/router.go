// Package router implements route resolution and path rewriting.
package router

import "strings"

// Route is one routing rule mapping an inbound host/path pattern to an
// upstream server. An empty Host or PathPrefix means the field is unset.
type Route struct {
	Host            string
	PathPrefix      string
	Default         bool
	Upstream        string
	StripPathPrefix bool
	ResponseHeaders map[string]string
}

// Table is an immutable, ordered route table. Order is significant: within a
// priority tier the first-inserted route wins.
type Table struct {
	routes []Route
}

// NewTable creates a Table from routes, preserving insertion order.
func NewTable(routes []Route) *Table {
	return &Table{routes: routes}
}

// Routes returns the routes in table order.
func (t *Table) Routes() []Route {
	return t.routes
}

// Len returns the number of routes in the table.
func (t *Table) Len() int {
	return len(t.routes)
}

// Resolve picks the route for the given host and path, or reports that none
// matched. Tiers are evaluated in strict priority order; the first match in
// table order wins within a tier:
//
//  1. host and path prefix both match
//  2. host matches and the route declares no path prefix
//  3. path prefix matches, regardless of the route's host
//  4. default routes, a host-restricted default ahead of a host-less one
//
// A route whose declared path prefix does not match the request path never
// qualifies at tier 2: the prefix is a constraint, not a hint.
func (t *Table) Resolve(host, path string) (Route, bool) {
	for _, r := range t.routes {
		if r.Host != "" && r.PathPrefix != "" && r.Host == host && strings.HasPrefix(path, r.PathPrefix) {
			return r, true
		}
	}

	for _, r := range t.routes {
		if r.Host != "" && r.Host == host && r.PathPrefix == "" {
			return r, true
		}
	}

	for _, r := range t.routes {
		if r.PathPrefix != "" && strings.HasPrefix(path, r.PathPrefix) {
			return r, true
		}
	}

	// Defaults: scanning the whole table before settling for a host-less
	// default gives a host-restricted default precedence regardless of
	// where it sits in the table.
	var fallback *Route
	for i := range t.routes {
		r := &t.routes[i]
		if !r.Default {
			continue
		}
		if r.Host != "" && r.Host == host {
			return *r, true
		}
		if r.Host == "" && fallback == nil {
			fallback = r
		}
	}
	if fallback != nil {
		return *fallback, true
	}

	return Route{}, false
}

// Rewrite returns the path to forward upstream. When the route strips its
// prefix, the first literal occurrence of the prefix is removed; this is a
// textual replacement, not a segment-aware one. The result may be empty; the
// forwarding layer sends "/" in that case.
func Rewrite(path string, r Route) string {
	if r.PathPrefix == "" || !r.StripPathPrefix {
		return path
	}
	return strings.Replace(path, r.PathPrefix, "", 1)
}
