// Package telemetry carries the Sentry tracing and Prometheus metrics of the
// knowledge base.
package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/cloo-solutions/campaignkb/internal/domain"
	"github.com/getsentry/sentry-go"
)

const serviceName = "campaignkb"

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// untracedTransactions are never sampled.
var untracedTransactions = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

// Init initializes Sentry with tracing enabled and returns a function that
// flushes pending events. With an empty DSN, or when Sentry rejects the
// options, it returns a no-op and the caller runs untraced.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           cfg.DSN,
		Environment:   cfg.Environment,
		EnableTracing: true,
		Debug:         cfg.Debug,
		ServerName:    serviceName,
		TracesSampler: sampleTraces(cfg.TracesSampleRate),
	})
	if err != nil {
		log.Printf("sentry: failed to initialize (continuing without tracing): %v", err)
		return func() {}, nil
	}

	log.Printf("sentry: tracing initialized (environment: %s, sample_rate: %.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// sampleTraces drops health and scrape requests, keeps child spans with
// their parent, and samples new transactions at rate.
func sampleTraces(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if untracedTransactions[ctx.Span.Name] {
			return 0
		}
		var emptySpanID sentry.SpanID
		if ctx.Span.ParentSpanID != emptySpanID {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// SpanAttributes describe the document or query a span works on.
type SpanAttributes struct {
	SourceFile string
	Session    *int
	Operation  string
	K          int
}

// Span wraps sentry.Span. The zero value is a no-op.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span as failed, tags it with the domain error code and
// captures the error.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = spanStatus(err)
	if code := domain.CodeOf(err); code != "" {
		s.inner.SetTag("error_code", code)
	}
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// SetCount records a result size, such as hits returned or chunks written.
func (s *Span) SetCount(key string, n int) {
	if s.inner != nil {
		s.inner.SetData(key, n)
	}
}

func spanStatus(err error) sentry.SpanStatus {
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound
	case domain.ErrCodeExtraction:
		return sentry.SpanStatusFailedPrecondition
	case domain.ErrCodeStoreUnavailable:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}

func setAttributes(span *sentry.Span, attrs SpanAttributes) {
	if attrs.SourceFile != "" {
		span.SetTag("source_file", attrs.SourceFile)
	}
	if attrs.Session != nil {
		span.SetTag("session", strconv.Itoa(*attrs.Session))
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
	if attrs.K > 0 {
		span.SetData("k", attrs.K)
	}
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// there is none (CLI runs and the sync worker).
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	setAttributes(span, attrs)
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err on the hub in ctx, tagged with its domain code.
func CaptureError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if code := domain.CodeOf(err); code != "" {
			scope.SetTag("error_code", code)
		}
		hub.CaptureException(err)
	})
}

// AddBreadcrumb adds an info breadcrumb to the scope in ctx.
func AddBreadcrumb(ctx context.Context, category, message string, data map[string]interface{}) {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Data:      data,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.AddBreadcrumb(breadcrumb, nil)
}
