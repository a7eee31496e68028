package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// RegistryChecker checks remote token registry reachability.
type RegistryChecker interface {
	Ping(ctx context.Context) error
}
