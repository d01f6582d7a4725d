package config_test

import (
	"strings"
	"testing"

	"reviewline/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default("library")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Correction.Types) != 2 {
		t.Fatalf("expected 2 correction types, got %d", len(cfg.Correction.Types))
	}
	withdraw := cfg.CorrectionTypeByID(config.TypeRequestWithdrawn)
	if withdraw == nil || withdraw.Topic != config.TopicRequestWithdrawn {
		t.Fatalf("request-withdrawn type misconfigured: %+v", withdraw)
	}
	if !withdraw.RequireArchived || !withdraw.RequireNoOpenCorrection {
		t.Fatalf("request-withdrawn predicate wrong: %+v", withdraw)
	}
	reinstate := cfg.CorrectionTypeByID(config.TypeRequestReinstate)
	if reinstate == nil || !reinstate.RequireWithdrawn {
		t.Fatalf("request-reinstate predicate wrong: %+v", reinstate)
	}
}

func TestDefaultYAMLParses(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.DefaultYAML))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.Site.Name != "my-site" {
		t.Fatalf("unexpected site name %q", cfg.Site.Name)
	}
	if len(cfg.Correction.Types) != 2 {
		t.Fatalf("expected 2 correction types, got %d", len(cfg.Correction.Types))
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing site name",
			yaml: "site:\n  name: \"\"\n",
			want: "site.name",
		},
		{
			name: "missing topic",
			yaml: "site:\n  name: x\ncorrection:\n  types:\n    - id: a\n",
			want: "topic is required",
		},
		{
			name: "duplicate id",
			yaml: "site:\n  name: x\ncorrection:\n  types:\n    - id: a\n      topic: T/A\n    - id: a\n      topic: T/B\n",
			want: "duplicate id",
		},
		{
			name: "conflicting predicate",
			yaml: "site:\n  name: x\ncorrection:\n  types:\n    - id: a\n      topic: T/A\n      require_archived: true\n      require_withdrawn: true\n",
			want: "mutually exclusive",
		},
		{
			name: "webhook without url",
			yaml: "site:\n  name: x\nwebhooks:\n  - events: [task.approved]\n",
			want: "url is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
