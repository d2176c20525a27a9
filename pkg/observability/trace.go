// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for spans emitted by offline-kit.
const TracerName = "github.com/quizforge/offline-kit"

// Tracer returns the offline-kit tracer from the global provider. Spans are
// no-ops until the host application installs a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
