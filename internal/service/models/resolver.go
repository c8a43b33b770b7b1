package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
)

// DefaultAlias is used when no alias is configured.
const DefaultAlias = "gpt-4o"

// Alias maps a client-facing model name to the upstream model identifier.
type Alias struct {
	Alias      string
	UpstreamID string
}

// DefaultAliases is the built-in alias table.
func DefaultAliases() []Alias {
	return []Alias{
		{Alias: "gpt-4o-mini", UpstreamID: "gpt-4o-mini"},
		{Alias: "gpt-4o", UpstreamID: "gpt-4o"},
	}
}

// Resolution is the outcome of a successful lookup.
type Resolution struct {
	UpstreamID string
	AliasUsed  string
}

// Resolver looks aliases up in a table fixed at construction time.
type Resolver struct {
	table        map[string]string
	defaultAlias string
}

// NewResolver builds a resolver from entries; later entries override earlier ones.
// The default alias must be present in the table.
func NewResolver(defaultAlias string, entries ...Alias) (*Resolver, error) {
	table := make(map[string]string, len(entries))
	for _, entry := range entries {
		alias, id := strings.TrimSpace(entry.Alias), strings.TrimSpace(entry.UpstreamID)
		if alias == "" || id == "" {
			return nil, fmt.Errorf("invalid model alias entry %q=%q", entry.Alias, entry.UpstreamID)
		}
		table[alias] = id
	}

	defaultAlias = strings.TrimSpace(defaultAlias)
	if defaultAlias == "" {
		defaultAlias = DefaultAlias
	}
	if _, ok := table[defaultAlias]; !ok {
		return nil, fmt.Errorf("default model alias %q is not in the alias table", defaultAlias)
	}

	return &Resolver{table: table, defaultAlias: defaultAlias}, nil
}

// WithOverrides returns DefaultAliases extended by the given alias->id pairs.
func WithOverrides(overrides map[string]string) []Alias {
	entries := DefaultAliases()
	keys := make([]string, 0, len(overrides))
	for alias := range overrides {
		keys = append(keys, alias)
	}
	sort.Strings(keys)
	for _, alias := range keys {
		entries = append(entries, Alias{Alias: alias, UpstreamID: overrides[alias]})
	}
	return entries
}

// Resolve maps requested to an upstream model. A blank request selects the default alias;
// an unknown alias is an unsupported_model error, never the default.
func (r *Resolver) Resolve(requested string) (Resolution, error) {
	alias := strings.TrimSpace(requested)
	if alias == "" {
		alias = r.defaultAlias
	}

	id, ok := r.table[alias]
	if !ok {
		return Resolution{}, apperror.UnsupportedModel(alias)
	}
	return Resolution{UpstreamID: id, AliasUsed: alias}, nil
}

// Default returns the resolution of the default alias.
func (r *Resolver) Default() Resolution {
	return Resolution{UpstreamID: r.table[r.defaultAlias], AliasUsed: r.defaultAlias}
}

// Aliases lists the known aliases in sorted order.
func (r *Resolver) Aliases() []string {
	out := make([]string, 0, len(r.table))
	for alias := range r.table {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
