package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// kvToAttrs converts an alternating key/value slice (as accepted by Logger
// and Span methods) into OpenTelemetry attributes, stringifying values that
// are not already primitive types.
func kvToAttrs(keyvals []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		attrs = append(attrs, attribute.String(key, fmt.Sprintf("%v", keyvals[i+1])))
	}
	return attrs
}
