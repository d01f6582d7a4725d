package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the site configuration. It is authored as YAML, validated, and
// stored in the database so every process sees the same settings.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Correction CorrectionConfig `yaml:"correction"`
	Authz      AuthzConfig      `yaml:"authz"`
	Webhooks   []Webhook        `yaml:"webhooks,omitempty"`
}

type SiteConfig struct {
	Name string `yaml:"name"`
}

type CorrectionConfig struct {
	Types []CorrectionType `yaml:"types"`
}

// CorrectionType describes one kind of change request a user can open
// against an installed item. The Require* fields are the applicability
// predicate evaluated against the target item.
type CorrectionType struct {
	ID             string `yaml:"id"`
	Topic          string `yaml:"topic"`
	CreatesNewItem bool   `yaml:"creates_new_item"`

	RequireArchived         bool `yaml:"require_archived"`
	RequireWithdrawn        bool `yaml:"require_withdrawn"`
	RequireNoOpenCorrection bool `yaml:"require_no_open_correction"`
}

type AuthzConfig struct {
	// FaultFeature registers the always-failing feature when true. It is
	// meant for exercising the error path and is off by default.
	FaultFeature bool `yaml:"fault_feature"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events,omitempty"`
	Secret string   `yaml:"secret,omitempty"`
}

// Correction type identifiers and their request topics.
const (
	TypeRequestWithdrawn = "request-withdrawn"
	TypeRequestReinstate = "request-reinstate"

	TopicRequestWithdrawn = "REQUEST/WITHDRAWN"
	TopicRequestReinstate = "REQUEST/REINSTATE"
)

// Default returns the configuration a fresh site starts with.
func Default(siteName string) *Config {
	return &Config{
		Site: SiteConfig{Name: siteName},
		Correction: CorrectionConfig{
			Types: []CorrectionType{
				{
					ID:                      TypeRequestWithdrawn,
					Topic:                   TopicRequestWithdrawn,
					RequireArchived:         true,
					RequireNoOpenCorrection: true,
				},
				{
					ID:               TypeRequestReinstate,
					Topic:            TopicRequestReinstate,
					RequireWithdrawn: true,
				},
			},
		},
	}
}

func (c *Config) Validate() error {
	if c.Site.Name == "" {
		return fmt.Errorf("site.name is required")
	}
	seenID := map[string]bool{}
	for i, t := range c.Correction.Types {
		if t.ID == "" {
			return fmt.Errorf("correction.types[%d].id is required", i)
		}
		if t.Topic == "" {
			return fmt.Errorf("correction type %q: topic is required", t.ID)
		}
		if seenID[t.ID] {
			return fmt.Errorf("correction type %q: duplicate id", t.ID)
		}
		seenID[t.ID] = true
		if t.RequireArchived && t.RequireWithdrawn {
			return fmt.Errorf("correction type %q: require_archived and require_withdrawn are mutually exclusive", t.ID)
		}
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// CorrectionTypeByID returns the correction type with the given id, or nil.
func (c *Config) CorrectionTypeByID(id string) *CorrectionType {
	for i := range c.Correction.Types {
		if c.Correction.Types[i].ID == id {
			return &c.Correction.Types[i]
		}
	}
	return nil
}

func FromYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// DefaultYAML is the template written by `rl config init`.
const DefaultYAML = `site:
  name: my-site

correction:
  types:
    - id: request-withdrawn
      topic: REQUEST/WITHDRAWN
      require_archived: true
      require_no_open_correction: true
    - id: request-reinstate
      topic: REQUEST/REINSTATE
      require_withdrawn: true

authz:
  fault_feature: false

# webhooks:
#   - url: https://example.com/hook
#     events: [task.approved, task.rejected]
#     secret: changeme
`
