package otelhelper

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorEventName is the span event recorded for a failed node or call.
const ErrorEventName = "chatflow.error"

// ErrorTypeKey holds the Go type of the recorded error.
const ErrorTypeKey = "chatflow.error.type"

// SetError marks span failed and records err with attrs as a span event.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attrs = append(attrs, attribute.String(ErrorTypeKey, fmt.Sprintf("%T", err)))
	span.AddEvent(ErrorEventName, trace.WithAttributes(attrs...))
}
