package logging

import (
	"context"
	"testing"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"request id", WithRequestID, GetRequestID},
		{"service", WithService, GetService},
		{"endpoint", WithEndpoint, GetEndpoint},
		{"trace id", WithTraceID, GetTraceID},
		{"span id", WithSpanID, GetSpanID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(ctx); got != "" {
				t.Errorf("empty context returned %q", got)
			}
			if got := tt.get(tt.with(ctx, "value-1")); got != "value-1" {
				t.Errorf("got %q, want value-1", got)
			}
		})
	}
}

func TestExtractContextFields(t *testing.T) {
	ctx := WithService(WithRequestID(context.Background(), "req-1"), "inventory")

	fields := extractContextFields(ctx)
	if len(fields) != 2 {
		t.Fatalf("len(fields) = %d, want 2", len(fields))
	}
	if fields[0].Key != "request_id" || fields[1].Key != "service" {
		t.Errorf("fields = %v, want request_id then service", fields)
	}

	if got := extractContextFields(context.Background()); len(got) != 0 {
		t.Errorf("empty context produced %v", got)
	}
}
