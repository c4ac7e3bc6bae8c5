package lifecycle

import (
	"context"

	"github.com/yairfalse/sweeper/types"
)

// Provider is the capability set a concrete cloud/resource adapter implements.
// T is the adapter's native tag collection.
type Provider[T any] interface {
	// TagLookup returns the value of key or "" when absent. Exact, case-sensitive match.
	TagLookup(tags T, key string) string

	// TagUpdate returns tags with key set to value
	TagUpdate(tags T, key, value string) T

	// DeleteResource performs the destructive action
	DeleteResource(ctx context.Context, resourceID string) error

	// UpdateResourceDayCountTag persists the DaysCount tag on the live resource
	UpdateResourceDayCountTag(ctx context.Context, resourceID string, cleanupDays int, tags T) error

	// ListAllInstances enumerates candidates for a scan pass
	ListAllInstances(ctx context.Context) ([]types.Resource[T], error)
}
