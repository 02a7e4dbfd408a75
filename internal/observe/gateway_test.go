package observe

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type scriptedGateway struct {
	err error
}

func (g scriptedGateway) Synthesize(context.Context, string) ([]byte, error) {
	return []byte("RIFF"), g.err
}

func (g scriptedGateway) SynthesizeToFile(context.Context, string) (string, error) {
	return "/tmp/out.wav", g.err
}

func (g scriptedGateway) Transcribe(context.Context, string) (string, error) {
	return "abairt", g.err
}

func (g scriptedGateway) Probe(context.Context) bool { return true }

func collectNames(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	return names
}

func TestInstrumentGateway_RecordsRequests(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	g := InstrumentGateway(scriptedGateway{}, m, "abair")
	ctx := context.Background()

	if _, err := g.Synthesize(ctx, "Dia dhuit"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, err := g.Transcribe(ctx, "clip.wav"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	names := collectNames(t, reader)
	for _, want := range []string{
		"beal.synthesis.duration",
		"beal.transcription.duration",
		"beal.provider.requests",
	} {
		if !names[want] {
			t.Errorf("metric %q not recorded", want)
		}
	}
	if names["beal.provider.errors"] {
		t.Error("error counter recorded for successful calls")
	}
}

func TestInstrumentGateway_RecordsErrors(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	g := InstrumentGateway(scriptedGateway{err: errors.New("boom")}, m, "abair")
	if _, err := g.Synthesize(context.Background(), "Dia dhuit"); err == nil {
		t.Fatal("expected wrapped error to pass through")
	}

	names := collectNames(t, reader)
	if !names["beal.provider.errors"] {
		t.Error("error counter not recorded")
	}
}
