package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models permitflow.yml.
type Config struct {
	Site struct {
		Name     string `yaml:"name"`
		Document string `yaml:"document"`
	} `yaml:"site"`
	WorkTypes []string `yaml:"work_types"`
	Workers   struct {
		MinimumAge int `yaml:"minimum_age"`
	} `yaml:"workers"`
	Checklists map[string]ChecklistSection `yaml:"checklists"`
}

// ChecklistSection is a named group of safety checklist lines shown on the
// permit form; the engine stores ticks opaquely in the permit payload.
type ChecklistSection struct {
	Title string   `yaml:"title"`
	Items []string `yaml:"items"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.WorkTypes) == 0 {
		return fmt.Errorf("config.work_types is required")
	}
	for _, wt := range c.WorkTypes {
		if wt == "" {
			return fmt.Errorf("config.work_types contains empty entry")
		}
	}
	if c.Workers.MinimumAge < 18 {
		return fmt.Errorf("config.workers.minimum_age must be at least 18")
	}
	for name, section := range c.Checklists {
		if name == "" {
			return fmt.Errorf("config.checklists contains empty section name")
		}
		if len(section.Items) == 0 {
			return fmt.Errorf("checklist section %s has no items", name)
		}
	}
	return nil
}

// KnownWorkType reports whether wt is in the configured catalog.
func (c *Config) KnownWorkType(wt string) bool {
	for _, t := range c.WorkTypes {
		if t == wt {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "permitflow.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  name: "Eastern Region Pipelines"
  document: "ERPL/HS&E/25-26"

work_types:
  - Cold Work
  - Hot Work
  - Composite Work
  - Entry to Confined Space
  - Vehicle Entry
  - Excavation Work

workers:
  minimum_age: 18

checklists:
  general:
    title: "General precautions"
    items:
      - "Equipment / work area inspected"
      - "Surrounding area checked, cleaned and covered; oil, rags and grass removed"
      - "Manholes, sewers and hot nearby surfaces covered"
      - "Hazards from other routine and non-routine operations considered and concerned persons alerted"
      - "Equipment blinded, disconnected, closed, isolated or wedge opened"
      - "Equipment properly drained and depressurized"
      - "Equipment properly steamed or purged"
      - "Equipment water flushed"
      - "Free approach for fire tender available"
      - "Iron sulfide removed or kept wet"
      - "Equipment electrically isolated and tagged"
      - "Gas test for HC, toxic and oxygen completed"
      - "Running water hose and fire extinguisher provided; fire water system available"
      - "Area cordoned off with precautionary tag or board"
      - "Proper ventilation and lighting provided"
  hot_work:
    title: "Hot work and confined space"
    items:
      - "Proper means of exit and escape provided"
      - "Standby personnel provided"
      - "Checked for oil and gas trapped behind lining in equipment"
      - "Shield provided against spark"
      - "Portable equipment and nozzles properly grounded"
      - "Standby persons provided for entry to confined space"
      - "Adequate communication provided to standby person"
      - "Trained attendant provided with rescue equipment"
      - "Space adequately cooled for safe entry"
      - "Continuous inert gas flow arranged"
      - "Earthing and ELCB checked on temporary electrical connections"
      - "Gas cylinders kept outside the confined space"
      - "Spark arrestor checked on mobile equipment"
      - "Welding machine checked for safe location"
  vehicle:
    title: "Vehicle entry"
    items:
      - "Approved spark elimination system provided on the mobile equipment or vehicle"
  excavation:
    title: "Excavation"
    items:
      - "Proper slope, shoring or shuttering provided to prevent soil collapse"
      - "Excavated soil kept at safe distance from trench or pit edge"
      - "Safe means of access provided inside trench or pit"
      - "Movement of heavy vehicles prohibited"
`
