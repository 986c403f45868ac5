package ports

import "context"

// HealthChecker is implemented by each backing store the API depends on.
type HealthChecker interface {
	// Ping returns nil when the dependency answers.
	Ping(ctx context.Context) error
	// Name is the key used in the health report, e.g. "postgresql".
	Name() string
}
