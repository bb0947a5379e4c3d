/*
Package tracing provides lightweight request tracing for the admin API.

Each request gets a span. The trace context travels in the X-Trace-ID and
X-Span-ID headers, so a livebpctl invocation and the hub log lines it caused
share one trace id. Finished spans are buffered (1000 spans) and logged by a
background collector: errors at error level, slow spans at info, the rest at
debug.

# Usage

	tracer := tracing.New("livebp-hub", logger, 250*time.Millisecond)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "selftest")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
