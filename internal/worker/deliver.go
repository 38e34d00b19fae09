package worker

import (
	"context"

	"github.com/ignite/lead-pipeline/internal/delivery"
)

// DeliveryWorker adapts the delivery engine to the harness for one partner.
// Each partner gets its own worker instance and its own liveness row, so a
// single partner can be disabled without stopping the others.
type DeliveryWorker struct {
	engine  *delivery.Engine
	partner string
}

// NewDeliveryWorker creates the delivery worker for a partner.
func NewDeliveryWorker(engine *delivery.Engine, partner string) *DeliveryWorker {
	return &DeliveryWorker{engine: engine, partner: partner}
}

func (w *DeliveryWorker) Name() string { return w.partner + "-worker" }

func (w *DeliveryWorker) Process(ctx context.Context) error {
	return w.engine.ProcessBatch(ctx, w.partner)
}
