package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Reloader interface {
	Reload(ctx context.Context) error
}

// RunDatasetRefresher reloads the directory every interval until ctx is
// done. A failed reload keeps the previous dataset and is retried on the
// next tick. A non-positive interval disables refreshing.
func RunDatasetRefresher(ctx context.Context, r Reloader, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		return nil
	}
	logger = logger.With(zap.String("component", "dataset-refresher"))
	logger.Info("dataset refresher started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refreshOnce(ctx, r, interval, logger)
		}
	}
}

func refreshOnce(ctx context.Context, r Reloader, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.Reload(ctx); err != nil {
		logger.Warn("dataset refresh failed", zap.Error(err))
	}
}
