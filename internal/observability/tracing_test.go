package observability

import (
	"context"
	"testing"
)

func TestCollectorURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://collector:4318", want: "http://collector:4318/v1/traces"},
		{in: "https://otel.example.com/", want: "https://otel.example.com/v1/traces"},
		{in: "collector:4318", want: "http://collector:4318/v1/traces"},
		{in: "http://collector:4318/v1/traces", want: "http://collector:4318/v1/traces"},
		{in: "ftp://collector:21", wantErr: true},
	}
	for _, tt := range tests {
		got, err := collectorURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: got %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSetupTracingWithURLEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "http://127.0.0.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
