package config

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	nested := map[string]any{
		"base_url": "http://localhost:8000",
		"history": map[string]any{
			"max_context_tokens": float64(8192),
			"output_reserve":     float64(1024),
		},
	}
	flat := Flatten(nested)

	want := map[string]any{
		"base_url":                   "http://localhost:8000",
		"history.max_context_tokens": float64(8192),
		"history.output_reserve":     float64(1024),
	}
	if !reflect.DeepEqual(flat, want) {
		t.Errorf("expected %v, got %v", want, flat)
	}
}

func TestUnflattenRoundTrip(t *testing.T) {
	flat := map[string]any{
		"base_url":               "http://localhost:8000",
		"history.output_reserve": float64(1024),
		"log_level":              "info",
	}
	nested := Unflatten(flat)
	if !reflect.DeepEqual(Flatten(nested), flat) {
		t.Errorf("round trip mismatch: %v", Flatten(nested))
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name  string
		token any
		want  any
	}{
		{"long value", "abcdefgh", "***efgh"},
		{"short value", "abc", "***abc"},
		{"empty value", "", ""},
		{"non-string", float64(42), float64(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked := MaskSecrets(map[string]any{"token": tt.token, "model": "m"})
			if masked["token"] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, masked["token"])
			}
			if masked["model"] != "m" {
				t.Errorf("non-secret key must pass through, got %v", masked["model"])
			}
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("token") {
		t.Error("token must be secret")
	}
	if IsSecretKey("model") {
		t.Error("model must not be secret")
	}
}
