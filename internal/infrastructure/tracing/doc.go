/*
Package tracing records request spans for the control API.

Each API or vendor request opens a span; source operations started from it
carry the same trace id in their log fields. Finished spans are buffered and
written to the log by a collector goroutine.

	tracer := tracing.New("browser-source", logger, 1000)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "emit_event")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Trace context travels in the X-Trace-ID and X-Span-ID headers.
*/
package tracing
