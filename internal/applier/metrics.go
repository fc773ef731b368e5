package applier

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/sokinpui/stagedit/model"
)

const meterName = "github.com/sokinpui/stagedit/internal/applier"

type metrics struct {
	blocks  metric.Int64Counter
	locates metric.Int64Counter
}

// newMetrics uses the global meter provider, which is a no-op until the host
// program installs one.
func newMetrics() *metrics {
	meter := otel.Meter(meterName)

	blocks, err := meter.Int64Counter("stagedit_blocks_total",
		metric.WithDescription("Edit blocks processed, by edit type and status"))
	if err != nil {
		blocks = noop.Int64Counter{}
	}
	locates, err := meter.Int64Counter("stagedit_locate_total",
		metric.WithDescription("Successful block locates, by matching strategy"))
	if err != nil {
		locates = noop.Int64Counter{}
	}
	return &metrics{blocks: blocks, locates: locates}
}

func (m *metrics) block(t model.EditType, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.blocks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("edit_type", t.String()),
		attribute.String("status", status),
	))
}

func (m *metrics) located(strategy string) {
	m.locates.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
	))
}
