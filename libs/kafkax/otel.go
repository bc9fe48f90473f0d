package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Headers encodes m as Kafka headers followed by the trace context of ctx.
// Empty fields are left out.
func (m EventMeta) Headers(ctx context.Context) []kafka.Header {
	headers := make(headerCarrier, 0, 5)
	for _, h := range []struct{ key, value string }{
		{HeaderEventID, m.EventID},
		{HeaderEventType, m.EventType},
		{HeaderTenantID, m.TenantID},
	} {
		if h.value != "" {
			headers.Set(h.key, h.value)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, &headers)
	return headers
}

// ExtractTraceContext continues the trace carried in msg's headers.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	carrier := headerCarrier(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(*c, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}

func (c *headerCarrier) Set(key string, value string) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
