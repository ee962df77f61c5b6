package assistant

import "go.opentelemetry.io/otel"

const scopeName = "github.com/lukasbauer/aria/internal/assistant"

var tracer = otel.Tracer(scopeName)
