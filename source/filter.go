package source

import (
	"fmt"
	"sort"
	"strings"
)

// FilterBuilder assembles a Filter string in the Cloud Trace v1 filter
// grammar (spec §6: "a helper builder is provided producing strings like
// 'latency:500ms error:true service.name:X /http/status_code:500'").
// This is a convenience for constructing the string, not a parser — the
// engine never interprets a Filter's contents itself.
type FilterBuilder struct {
	terms map[string]string
}

// NewFilterBuilder returns an empty builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{terms: make(map[string]string)}
}

// Latency adds a "latency:<duration>" term, e.g. Latency("500ms").
func (b *FilterBuilder) Latency(duration string) *FilterBuilder {
	b.terms["latency"] = duration
	return b
}

// Error adds an "error:true"/"error:false" term.
func (b *FilterBuilder) Error(v bool) *FilterBuilder {
	b.terms["error"] = fmt.Sprintf("%t", v)
	return b
}

// ServiceName adds a "service.name:<name>" term.
func (b *FilterBuilder) ServiceName(name string) *FilterBuilder {
	b.terms["service.name"] = name
	return b
}

// HTTPStatusCode adds a "/http/status_code:<code>" term.
func (b *FilterBuilder) HTTPStatusCode(code int) *FilterBuilder {
	b.terms["/http/status_code"] = fmt.Sprintf("%d", code)
	return b
}

// Label adds an arbitrary "key:value" term for any other label.
func (b *FilterBuilder) Label(key, value string) *FilterBuilder {
	b.terms[key] = value
	return b
}

// Build renders the accumulated terms as a space-joined "key:value"
// string, in a stable (sorted by key) order so output is deterministic.
func (b *FilterBuilder) Build() Filter {
	keys := make([]string, 0, len(b.terms))
	for k := range b.terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, b.terms[k]))
	}
	return Filter(strings.Join(parts, " "))
}
