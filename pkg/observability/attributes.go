package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/covenant/pkg/faults"
)

// Covenant semantic convention attributes.
var (
	AttrOperation = attribute.Key("covenant.operation")
	AttrPrincipal = attribute.Key("covenant.principal")

	AttrTrancheIndex = attribute.Key("covenant.tranche.index")
	AttrInvestment   = attribute.Key("covenant.bond.investment_id")
	AttrVetoState    = attribute.Key("covenant.veto.state")

	AttrFaultCode = attribute.Key("covenant.fault.code")
	AttrFaultKind = attribute.Key("covenant.fault.kind")

	AttrNotificationOK = attribute.Key("covenant.notification.succeeded")
)

// OperationAttributes tags a protocol operation with its caller.
func OperationAttributes(op, principal string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String(op),
		AttrPrincipal.String(principal),
	}
}

// ErrorAttributes describes err by fault code and kind, or by Go type.
func ErrorAttributes(err error) []attribute.KeyValue {
	if code := faults.CodeOf(err); code != "" {
		return []attribute.KeyValue{
			AttrFaultCode.String(string(code)),
			AttrFaultKind.String(string(faults.KindOf(err))),
		}
	}
	return []attribute.KeyValue{attribute.String("error.type", fmt.Sprintf("%T", err))}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
