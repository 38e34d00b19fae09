package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/lead-pipeline/internal/pkg/logger"
	"github.com/ignite/lead-pipeline/internal/queue"
)

// MetricsWorker periodically samples queue depths and logs them. Growing
// dead-letter queues and aging heads are the operational signal that a stage
// is stuck.
type MetricsWorker struct {
	reader queue.MetricsReader
}

// NewMetricsWorker creates the queue metrics worker.
func NewMetricsWorker(reader queue.MetricsReader) *MetricsWorker {
	return &MetricsWorker{reader: reader}
}

func (w *MetricsWorker) Name() string { return "queue-metrics" }

func (w *MetricsWorker) Process(ctx context.Context) error {
	metrics, err := w.reader.QueueMetrics(ctx)
	if err != nil {
		return fmt.Errorf("queue metrics: %w", err)
	}
	for _, m := range metrics {
		fields := []interface{}{
			"queue", m.Queue,
			"visible", fmt.Sprintf("%d", m.Visible),
			"total", fmt.Sprintf("%d", m.Total),
		}
		if m.OldestAge != nil {
			fields = append(fields, "oldest_age", time.Since(*m.OldestAge).Round(time.Second).String())
		}
		logger.Info("queue depth", fields...)
	}
	return nil
}
