package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teangalab/beal/pkg/speech"
)

// instrumentedGateway decorates a [speech.Gateway] with latency histograms
// and request/error counters.
type instrumentedGateway struct {
	next speech.Gateway
	m    *Metrics

	// provider label attached to every metric, e.g. "abair".
	provider string
}

// InstrumentGateway wraps g so every call records to m.
func InstrumentGateway(g speech.Gateway, m *Metrics, provider string) speech.Gateway {
	return &instrumentedGateway{next: g, m: m, provider: provider}
}

func (g *instrumentedGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	audio, err := g.next.Synthesize(ctx, text)
	g.record(ctx, "synthesis", g.m.SynthesisDuration, time.Since(start), err)
	return audio, err
}

func (g *instrumentedGateway) SynthesizeToFile(ctx context.Context, text string) (string, error) {
	start := time.Now()
	path, err := g.next.SynthesizeToFile(ctx, text)
	g.record(ctx, "synthesis", g.m.SynthesisDuration, time.Since(start), err)
	return path, err
}

func (g *instrumentedGateway) Transcribe(ctx context.Context, audio string) (string, error) {
	start := time.Now()
	text, err := g.next.Transcribe(ctx, audio)
	g.record(ctx, "recognition", g.m.TranscriptionDuration, time.Since(start), err)
	return text, err
}

func (g *instrumentedGateway) Probe(ctx context.Context) bool {
	return g.next.Probe(ctx)
}

func (g *instrumentedGateway) record(ctx context.Context, kind string, hist metric.Float64Histogram, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		g.m.RecordProviderError(ctx, g.provider, kind)
	}
	g.m.RecordProviderRequest(ctx, g.provider, kind, status)
	hist.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", g.provider)),
	)
}
