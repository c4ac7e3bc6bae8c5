// Package filter provides static scope rules configured without Rego: excluded
// resource types plus include and exclude tag matches.
package filter

import (
	"context"
	"sort"

	"github.com/yairfalse/sweeper/policy"
)

// Scope is anything that can exclude a resource from a pass
type Scope interface {
	Excluded(ctx context.Context, in policy.Input) ([]string, error)
}

// Filter controls which resource types are processed and which resources are kept.
type Filter struct {
	excludeTypes map[string]bool
	includeTags  map[string]string
	excludeTags  map[string]string
}

// New creates a new Filter from the provided configuration.
func New(excludeTypes []string, includeTags, excludeTags map[string]string) *Filter {
	excludeMap := make(map[string]bool)
	for _, t := range excludeTypes {
		excludeMap[t] = true
	}

	return &Filter{
		excludeTypes: excludeMap,
		includeTags:  includeTags,
		excludeTags:  excludeTags,
	}
}

// Excluded returns one reason per failed rule, sorted
func (f *Filter) Excluded(ctx context.Context, in policy.Input) ([]string, error) {
	if f.IsEmpty() {
		return nil, nil
	}

	var reasons []string
	if f.excludeTypes[in.Resource.Type] {
		reasons = append(reasons, "type "+in.Resource.Type+" is excluded")
	}

	// all include tags must match
	for k, v := range f.includeTags {
		if in.Resource.Tags[k] != v {
			reasons = append(reasons, "missing tag "+k+"="+v)
		}
	}

	// any exclude tag matches
	for k, v := range f.excludeTags {
		if got, ok := in.Resource.Tags[k]; ok && got == v {
			reasons = append(reasons, "tagged "+k+"="+v)
		}
	}

	sort.Strings(reasons)
	return reasons, nil
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.excludeTypes) == 0 && len(f.includeTags) == 0 && len(f.excludeTags) == 0)
}

// Chain runs every scope and merges their reasons. The first error stops the chain.
type Chain []Scope

// Excluded implements Scope
func (c Chain) Excluded(ctx context.Context, in policy.Input) ([]string, error) {
	var reasons []string
	for _, s := range c {
		r, err := s.Excluded(ctx, in)
		if err != nil {
			return nil, err
		}
		reasons = append(reasons, r...)
	}
	sort.Strings(reasons)
	return reasons, nil
}
