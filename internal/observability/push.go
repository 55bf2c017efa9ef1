package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushMetrics sends everything in gatherer to a Prometheus Pushgateway under
// the given job name. Batch runs exit before a scrape would see them.
func PushMetrics(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
