package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fillesume/storefront"

// Counter is a named int64 counter that tolerates registration failures by becoming a no-op.
type Counter struct {
	inner metric.Int64Counter
}

// NewCounter registers a counter on the global meter provider.
func NewCounter(name, description string) Counter {
	counter, err := otel.GetMeterProvider().Meter(meterName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return Counter{}
	}
	return Counter{inner: counter}
}

// Add increments the counter with string attributes given as key/value pairs.
func (c Counter) Add(ctx context.Context, n int64, kv ...string) {
	if c.inner == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}
