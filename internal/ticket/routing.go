package ticket

import "strings"

// Routing maps referer hosts to CRM location ids. It is built once and never mutated.
type Routing struct {
	hosts    map[string]string
	fallback string
}

// NewRouting copies table (keys lower-cased) and records the default location id.
func NewRouting(table map[string]string, fallback string) *Routing {
	hosts := make(map[string]string, len(table))
	for k, v := range table {
		hosts[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &Routing{hosts: hosts, fallback: strings.TrimSpace(fallback)}
}

// Resolve returns the location id for host, the default when unmapped, or "" when neither exists.
func (r *Routing) Resolve(host string) string {
	if r == nil {
		return ""
	}
	if id := r.hosts[strings.ToLower(strings.TrimSpace(host))]; id != "" {
		return id
	}
	return r.fallback
}
