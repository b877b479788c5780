package broker

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// injectTraceContext appends the trace context of ctx to headers, replacing
// any propagation keys already present.
func injectTraceContext(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return headers
	}

	out := make([]kafka.Header, 0, len(headers)+len(carrier))
	for _, h := range headers {
		if _, ok := carrier[h.Key]; !ok {
			out = append(out, h)
		}
	}
	for _, k := range carrier.Keys() {
		out = append(out, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}
	return out
}

// extractTraceContext rebuilds the producer's trace context from headers.
func extractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
