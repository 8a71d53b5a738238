// Package telemetry provides OpenTelemetry setup and attribute conventions for the push bridge.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by bridge instruments.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrModule names the native module a call targets.
	AttrModule = attribute.Key("bridge.module")
	// AttrMethod names the native method a call targets.
	AttrMethod = attribute.Key("bridge.method")
	// AttrEventKind is the capability-level event kind (click, change, ...).
	AttrEventKind = attribute.Key("event.kind")
	// AttrDirection distinguishes outbound calls from inbound callbacks.
	AttrDirection = attribute.Key("direction")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
	// AttrReason provides free-form context for failures.
	AttrReason = attribute.Key("reason")
	// AttrConnectionState labels transport lifecycle signals.
	AttrConnectionState = attribute.Key("connection.state")
)

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// Direction values.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// ChannelAttributes returns attributes for metrics scoped to a native channel.
func ChannelAttributes(environment, module, method string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrModule.String(module),
		AttrMethod.String(method),
	}
}

// EventAttributes returns attributes for multiplexer metrics.
func EventAttributes(environment, kind, method string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrEventKind.String(kind),
	}
	if method != "" {
		attrs = append(attrs, AttrMethod.String(method))
	}
	return attrs
}

// CallResultAttributes returns attributes for call metrics with result classification.
func CallResultAttributes(environment, method, direction, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrMethod.String(method),
		AttrDirection.String(direction),
		AttrResult.String(result),
	}
}

// ConnectionAttributes returns attributes for connection state metrics.
func ConnectionAttributes(environment, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrConnectionState.String(state),
	}
}
