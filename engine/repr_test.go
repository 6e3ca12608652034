package engine_test

import (
	"testing"

	"github.com/tailored-agentic-units/pyide/engine"
)

func TestShorten(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "abc", limit: 10, want: "abc"},
		{name: "exact", in: "abcdef", limit: 6, want: "abcdef"},
		{name: "truncated", in: "abcdefghij", limit: 4, want: "ab|ij"},
		{name: "odd limit", in: "abcdefghij", limit: 5, want: "ab|hij"},
		{name: "disabled", in: "abcdefghij", limit: 0, want: "abcdefghij"},
		{name: "runes", in: "αβγδεζ", limit: 2, want: "α|ζ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Shorten(tt.in, tt.limit, "|"); got != tt.want {
				t.Errorf("Shorten(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := engine.DefaultConfig()
	if cfg.ReprLimit != engine.DefaultReprLimit || cfg.ReprSeparator != engine.DefaultReprSeparator {
		t.Fatalf("DefaultConfig() = %+v", cfg)
	}

	cfg.Merge(&engine.Config{ReprLimit: 200, AutoInstall: true})
	if cfg.ReprLimit != 200 {
		t.Errorf("ReprLimit = %d, want 200", cfg.ReprLimit)
	}
	if !cfg.AutoInstall {
		t.Error("AutoInstall not merged")
	}
	if cfg.PollInterval.Std() <= 0 {
		t.Error("PollInterval lost by merge")
	}
}
