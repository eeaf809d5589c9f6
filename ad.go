package featuregate

import "context"

// AdProvider is the rewarded-ad collaborator.
type AdProvider interface {
	// Load asks the SDK to fetch an ad.
	Load(ctx context.Context) error

	// IsReady reports whether an ad is loaded and can be shown.
	IsReady() bool

	// Show displays the ad and blocks until the viewer closes it.
	// Returns true iff the reward was earned before the view closed.
	Show(ctx context.Context) (bool, error)
}
