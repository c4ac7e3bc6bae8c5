package types

import "time"

// Resource represents a cloud resource found by a provider scan.
// T is the provider's native tag collection ([]ec2types.Tag, map[string]string, ...)
type Resource[T any] struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Region    string     `json:"region"`
	Name      string     `json:"name,omitempty"`
	State     string     `json:"state,omitempty"`
	Tags      T          `json:"tags"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// InUse marks a resource that no longer matches the idle predicate but still
	// carries an idle-day counter; its counter is reset instead of evaluated.
	InUse bool `json:"in_use,omitempty"`
}

// HasCreationDate reports whether the provider returned a creation timestamp
func (r *Resource[T]) HasCreationDate() bool {
	return r.CreatedAt != nil && !r.CreatedAt.IsZero()
}
