package config

import "testing"

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Inventory.ReorderThreshold != 5 {
		t.Fatalf("reorder threshold = %d", cfg.Inventory.ReorderThreshold)
	}
	if len(cfg.Providers.OCR) != 3 {
		t.Fatalf("expected 3 OCR providers, got %d", len(cfg.Providers.OCR))
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative tolerance", "server:\n  token_ttl_minutes: 60\naggregation:\n  tolerance: -1\nproviders:\n  timeout_seconds: 5\n"},
		{"zero timeout", "server:\n  token_ttl_minutes: 60\nproviders:\n  timeout_seconds: 0\n"},
		{"duplicate ocr name", "server:\n  token_ttl_minutes: 60\nproviders:\n  timeout_seconds: 5\n  ocr:\n    - name: vision\n    - name: vision\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromYAML([]byte(tc.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
