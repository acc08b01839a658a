package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{})

	assert.NoError(t, err)
	assert.NotPanics(t, shutdown)
}

func TestSampleTraces(t *testing.T) {
	sample := sampleTraces(0.25)

	assert.Equal(t, 0.0, sample(sentry.SamplingContext{Span: &sentry.Span{Name: "GET /health"}}))
	assert.Equal(t, 0.0, sample(sentry.SamplingContext{Span: &sentry.Span{Name: "GET /metrics"}}))
	assert.Equal(t, 0.25, sample(sentry.SamplingContext{Span: &sentry.Span{Name: "POST /ask"}}))

	child := &sentry.Span{Name: "kb.ask", ParentSpanID: sentry.SpanID{1}, Sampled: sentry.SampledTrue}
	assert.Equal(t, 1.0, sample(sentry.SamplingContext{Span: child}))

	child.Sampled = sentry.SampledFalse
	assert.Equal(t, 0.0, sample(sentry.SamplingContext{Span: child}))
}

func TestSpanStatus(t *testing.T) {
	tests := []struct {
		err  error
		want sentry.SpanStatus
	}{
		{domain.ErrEmptyQuery, sentry.SpanStatusInvalidArgument},
		{domain.ErrDocumentNotFound, sentry.SpanStatusNotFound},
		{domain.NewExtractionError("a.pdf", errors.New("bad xref")), sentry.SpanStatusFailedPrecondition},
		{domain.NewStoreUnavailable(errors.New("refused")), sentry.SpanStatusUnavailable},
		{errors.New("boom"), sentry.SpanStatusInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, spanStatus(tt.err), tt.err.Error())
	}
}

func TestSpan_WithoutInit(t *testing.T) {
	session := 3
	ctx, span := StartSpan(context.Background(), "kb.session_enemies", SpanAttributes{
		Session:   &session,
		Operation: "session_enemies",
		K:         12,
	})

	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.SetCount("hits", 4)
		span.SetError(errors.New("boom"))
		span.End()
		CaptureError(ctx, domain.ErrFeatureDisabled)
		AddBreadcrumb(ctx, "sync", "skipped document", map[string]interface{}{"source_file": "a.pdf"})
	})
}

func TestSpan_ZeroValue(t *testing.T) {
	var span Span

	assert.NotPanics(t, func() {
		span.SetCount("hits", 1)
		span.SetError(errors.New("boom"))
		span.End()
	})
}
