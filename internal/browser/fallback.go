package browser

import (
	"context"
	"fmt"
	"log/slog"
)

// Acquirer applies the engine fallback policy: try the preferred engine, and
// on initialisation failure try the fallback exactly once. The chosen engine
// name travels with the session so the scheduler can stamp it on snapshots.
type Acquirer struct {
	preferred Engine
	fallback  Engine
	logger    *slog.Logger
}

// NewAcquirer creates an Acquirer. fallback may be nil when no backup engine
// is configured.
func NewAcquirer(preferred, fallback Engine, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{preferred: preferred, fallback: fallback, logger: logger}
}

// Acquire returns a session and the name of the engine that produced it.
func (a *Acquirer) Acquire(ctx context.Context) (Session, string, error) {
	sess, err := a.preferred.Acquire(ctx)
	if err == nil {
		return sess, a.preferred.Name(), nil
	}

	if a.fallback == nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, a.preferred.Name(), err)
	}

	a.logger.Warn("browser: preferred engine failed, trying fallback",
		"preferred", a.preferred.Name(), "fallback", a.fallback.Name(), "error", err)

	sess, ferr := a.fallback.Acquire(ctx)
	if ferr != nil {
		return nil, "", fmt.Errorf("%w: %s: %v; %s: %v",
			ErrEngineUnavailable, a.preferred.Name(), err, a.fallback.Name(), ferr)
	}
	return sess, a.fallback.Name(), nil
}

// Close releases both engines.
func (a *Acquirer) Close() error {
	err := a.preferred.Close()
	if a.fallback != nil {
		if ferr := a.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
