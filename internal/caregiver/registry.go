package caregiver

import (
	"strings"

	"github.com/yourname/babylog/internal"
)

// Registry holds the fixed caregiver allow-list for one household. Lookups
// are case-insensitive and return the canonical spelling.
type Registry struct {
	canonical map[string]string
	names     []string
	logger    internal.Logger
}

func NewRegistry(names []string, logger internal.Logger) *Registry {
	r := &Registry{canonical: make(map[string]string, len(names)), logger: logger}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := r.canonical[key]; ok {
			continue
		}
		r.canonical[key] = n
		r.names = append(r.names, n)
	}
	return r
}

// Resolve returns the canonical caregiver name for any accepted spelling.
func (r *Registry) Resolve(name string) (string, bool) {
	c, ok := r.canonical[strings.ToLower(strings.TrimSpace(name))]
	if !ok && name != "" {
		r.logger.Warnf("unknown caregiver: %s", name)
	}
	return c, ok
}

// Names lists the canonical caregivers in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
