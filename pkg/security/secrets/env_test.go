package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestEnvProvider_Variable(t *testing.T) {
	p := NewEnvProvider(DefaultEnvPrefix)

	tests := []struct {
		name string
		want string
	}{
		{"billing-password", "COURIER_SECRET_BILLING_PASSWORD"},
		{"orders.api_key", "COURIER_SECRET_ORDERS_API_KEY"},
		{"KEY2", "COURIER_SECRET_KEY2"},
	}

	for _, tt := range tests {
		if got := p.Variable(tt.name); got != tt.want {
			t.Errorf("Variable(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEnvProvider_Get(t *testing.T) {
	t.Setenv("COURIER_SECRET_BILLING_PASSWORD", "hunter2")
	t.Setenv("COURIER_SECRET_EMPTY", "")
	p := NewEnvProvider(DefaultEnvPrefix)

	got, err := p.Get(context.Background(), "billing-password")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Get() = %q, want hunter2", got)
	}

	for _, name := range []string{"empty", "missing"} {
		if _, err := p.Get(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}
