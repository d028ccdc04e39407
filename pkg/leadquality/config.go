package leadquality

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DomainPenalty subtracts from the score when the email domain contains
// Pattern. Order matters: the first match wins.
type DomainPenalty struct {
	Pattern string `yaml:"pattern"`
	Penalty int    `yaml:"penalty"`
}

type Weights struct {
	Values  map[string]int `yaml:"values"`
	Default int            `yaml:"default"`
}

func (w Weights) lookup(key string) int {
	if v, ok := w.Values[key]; ok && v != 0 {
		return v
	}
	return w.Default
}

type Config struct {
	Base              int             `yaml:"base"`
	Countries         Weights         `yaml:"countries"`
	Treatments        Weights         `yaml:"treatments"`
	UTMSources        Weights         `yaml:"utm_sources"`
	SuspiciousDomains []DomainPenalty `yaml:"suspicious_domains"`
	Thresholds        struct {
		Hot  int `yaml:"hot"`
		Warm int `yaml:"warm"`
		Cold int `yaml:"cold"`
	} `yaml:"thresholds"`
}

func DefaultConfig() Config {
	cfg := Config{
		Base: 40,
		Countries: Weights{
			Values:  map[string]int{"KR": 10, "US": 8, "JP": 8, "CN": 6, "TH": 5},
			Default: 3,
		},
		Treatments: Weights{
			Values: map[string]int{
				"rhinoplasty":         10,
				"double-eyelid":       8,
				"facelift":            10,
				"breast-augmentation": 9,
				"liposuction":         7,
				"botox":               4,
				"filler":              4,
			},
			Default: 5,
		},
		UTMSources: Weights{
			Values: map[string]int{
				"google":    7,
				"naver":     8,
				"instagram": 6,
				"facebook":  5,
				"organic":   8,
				"direct":    6,
				"referral":  7,
			},
			Default: 5,
		},
		SuspiciousDomains: []DomainPenalty{
			{Pattern: "tempmail", Penalty: -20},
			{Pattern: "throwaway", Penalty: -20},
			{Pattern: "guerrilla", Penalty: -20},
			{Pattern: "mailinator", Penalty: -20},
		},
	}
	cfg.Thresholds.Hot = 70
	cfg.Thresholds.Warm = 50
	cfg.Thresholds.Cold = 30
	return cfg
}

// LoadConfig overlays a YAML file on DefaultConfig. Weight maps are merged
// key by key; a suspicious_domains list replaces the default list.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read lead scoring config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse lead scoring config: %w", err)
	}
	return cfg, nil
}
