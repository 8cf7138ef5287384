package tracing

import (
	"context"
	"strings"
	"testing"

	"github.com/shardfeed/shardfeed/internal/config"
)

func TestInitDisabled(t *testing.T) {
	p, err := Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if p.tp != nil {
		t.Error("disabled tracing created a TracerProvider")
	}
	if p.Tracer() == nil {
		t.Error("Tracer() returned nil for disabled provider")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	_, err := Init(context.Background(), config.TracingConfig{
		Endpoint:   "localhost:4317",
		SampleRate: 2.0,
	})
	if err == nil {
		t.Fatal("Init() with sample rate 2.0 did not error")
	}
	if !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("error %q does not mention sample_rate", err)
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("Init() with bad protocol did not error")
	}
	if !strings.Contains(err.Error(), "unsupported OTLP protocol") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	if p.Tracer() == nil {
		t.Error("nil provider Tracer() returned nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
}
