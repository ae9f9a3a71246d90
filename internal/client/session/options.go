package session

import "time"

// MountPolicy controls what happens when a consumer mounts.
type MountPolicy int

const (
	// MountIfStale refetches on mount only when the value is stale.
	MountIfStale MountPolicy = iota
	// MountAlways refetches on every mount.
	MountAlways
	// MountNever serves any cached value on mount.
	MountNever
)

// Options configures the cache policy.
type Options struct {
	// StaleTime is how long a fetched value is served without refetching.
	StaleTime time.Duration
	// GCTime is how long a value is retained before it is dropped.
	GCTime time.Duration
	// Retry is the number of retries after a failed session check.
	Retry int
	// RetryDelay is the pause before each retry.
	RetryDelay time.Duration

	RefetchOnFocus     bool
	RefetchOnMount     MountPolicy
	RefetchOnReconnect bool
}

func DefaultOptions() Options {
	return Options{
		StaleTime:          time.Hour,
		GCTime:             24 * time.Hour,
		Retry:              1,
		RetryDelay:         time.Second,
		RefetchOnFocus:     false,
		RefetchOnMount:     MountAlways,
		RefetchOnReconnect: false,
	}
}
