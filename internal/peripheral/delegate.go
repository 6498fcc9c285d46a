package peripheral

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blup/internal/groutine"
)

// AuthDelegate is notified about pairing events. It is optional; without it
// pairing events are only logged.
type AuthDelegate interface {
	PairingCancelled(conn ConnID)
}

// SampleSource produces periodic simulated readings.
type SampleSource interface {
	Name() string
	Next() []byte
}

// runSamples polls every source once per interval until ctx is done.
func runSamples(ctx context.Context, interval time.Duration, sources []SampleSource, logger *logrus.Logger, emit func(Event)) <-chan struct{} {
	return groutine.Go(ctx, "sample-loop", func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.WithFields(logrus.Fields{
			"interval": interval,
			"sources":  len(sources),
		}).Debug("Sample loop started")
		defer logger.Debug("Sample loop stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, src := range sources {
					v := src.Next()
					logger.WithFields(logrus.Fields{
						"source": src.Name(),
						"value":  v,
					}).Debug("Sample")
					emit(Event{Kind: EventSample, Time: time.Now(), Source: src.Name(), Data: v})
				}
			}
		}
	})
}
