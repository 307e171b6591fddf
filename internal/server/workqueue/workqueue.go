// Package workqueue hands export work items to the asynchronous worker
// fleet. Delivery guarantees belong to the queue backend.
package workqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/bridgeupload/internal/common"
	"github.com/dmitrijs2005/bridgeupload/internal/logging"
)

// Envelope is the wire format read by the workers: the worker name and its
// worker-specific payload.
type Envelope struct {
	Service string          `json:"service"`
	Body    json.RawMessage `json:"body"`
}

// WorkQueue accepts one envelope per call.
type WorkQueue interface {
	Enqueue(ctx context.Context, env Envelope) error
}

// Dispatcher wraps payloads in an Envelope and enqueues them.
type Dispatcher struct {
	queue   WorkQueue
	logger  logging.Logger
	metrics Metrics
}

// Metrics receives one observation per enqueue attempt.
type Metrics interface {
	ObserveEnqueue(service string, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveEnqueue(string, error) {}

// NewDispatcher returns a Dispatcher over queue. metrics may be nil.
func NewDispatcher(queue WorkQueue, logger logging.Logger, metrics Metrics) *Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dispatcher{queue: queue, logger: logger, metrics: metrics}
}

// Dispatch serialises body and enqueues it for service. Failures are
// wrapped in common.ErrorInternal.
func (d *Dispatcher) Dispatch(ctx context.Context, service string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal %s work item: %v", common.ErrorInternal, service, err)
	}

	err = d.queue.Enqueue(ctx, Envelope{Service: service, Body: raw})
	d.metrics.ObserveEnqueue(service, err)
	if err != nil {
		return fmt.Errorf("%w: enqueue %s work item: %v", common.ErrorInternal, service, err)
	}

	d.logger.Debug(ctx, "work item enqueued", "service", service)
	return nil
}
