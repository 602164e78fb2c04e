package metrics

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushToGateway delivers all registered metrics to a Pushgateway. A batch
// process has no scrape surface, so this runs once at the end of a refresh
// when a gateway URL is configured.
func PushToGateway(url string, logger *slog.Logger) error {
	if err := push.New(url, "devpulse").Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	logger.Info("Pushed metrics", "gateway", url)
	return nil
}
