package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/pyide/config"
)

func TestDuration_JSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"10ms"`, want: 10 * time.Millisecond},
		{name: "nanoseconds", input: `1500`, want: 1500},
		{name: "invalid string", input: `"soon"`, wantErr: true},
		{name: "invalid type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d config.Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && d.Std() != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, d.Std(), tt.want)
			}
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(config.Duration(2 * time.Second))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"2s"` {
		t.Errorf("Marshal = %s, want %q", data, `"2s"`)
	}
}

func TestDuration_YAML(t *testing.T) {
	var out struct {
		Poll config.Duration `yaml:"poll"`
	}
	if err := yaml.Unmarshal([]byte("poll: 250ms\n"), &out); err != nil {
		t.Fatalf("yaml.Unmarshal failed: %v", err)
	}
	if out.Poll.Std() != 250*time.Millisecond {
		t.Errorf("poll = %v, want 250ms", out.Poll.Std())
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}
	if string(data) != "poll: 250ms\n" {
		t.Errorf("yaml.Marshal = %q", data)
	}
}
