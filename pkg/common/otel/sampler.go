package otel

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// endpointExcluder drops spans for configured http targets (health probes,
// metrics scrapes) and ratio-samples everything else.
type endpointExcluder struct {
	endpoints   map[string]struct{}
	probability float64
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{
		endpoints:   endpoints,
		probability: probability,
	}
}

// ShouldSample implements the sampler interface.
func (epe endpointExcluder) ShouldSample(parameters sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for i := range parameters.Attributes {
		if parameters.Attributes[i].Key == "http.target" {
			if _, exists := epe.endpoints[parameters.Attributes[i].Value.AsString()]; exists {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}

	return sdktrace.TraceIDRatioBased(epe.probability).ShouldSample(parameters)
}

// Description implements the sampler interface.
func (epe endpointExcluder) Description() string {
	return "endpointExcluder"
}
