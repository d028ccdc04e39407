package alerts

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Band struct {
	Warning  int           `yaml:"warning"`
	Critical int           `yaml:"critical"`
	Window   time.Duration `yaml:"window"`
}

type Thresholds struct {
	ErrorRate          Band `yaml:"error_rate"`
	BlockRate          Band `yaml:"block_rate"`
	EncryptionFailures Band `yaml:"encryption_failures"`
	HighPriorityLead   struct {
		MinScore int `yaml:"min_score"`
	} `yaml:"high_priority_lead"`
}

func DefaultThresholds() Thresholds {
	t := Thresholds{
		ErrorRate:          Band{Warning: 5, Critical: 10, Window: 5 * time.Minute},
		BlockRate:          Band{Warning: 20, Critical: 50, Window: time.Hour},
		EncryptionFailures: Band{Warning: 3, Critical: 5, Window: 10 * time.Minute},
	}
	t.HighPriorityLead.MinScore = 80
	return t
}

// LoadThresholds overlays a YAML file on the defaults. An empty path
// returns the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read alert thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return DefaultThresholds(), fmt.Errorf("parse alert thresholds: %w", err)
	}
	return t, nil
}
