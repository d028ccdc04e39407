package dlp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Mask     string `yaml:"mask" json:"mask"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity"`
}

type RulesConfig struct {
	// ReplaceDefaults drops the built-in contact rules instead of merging.
	ReplaceDefaults bool   `yaml:"replace_defaults" json:"replace_defaults"`
	Rules           []Rule `yaml:"rules" json:"rules"`
}

// LoadRules merges a YAML rule file into DefaultRules: a file rule with the
// same type replaces the built-in one, others are appended. An empty path
// selects DefaultRules.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), fmt.Errorf("reading dlp rules: %w", err)
	}

	var file RulesConfig
	if err := yaml.Unmarshal(content, &file); err != nil {
		return DefaultRules(), fmt.Errorf("parsing dlp rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return DefaultRules(), errors.New("no DLP rules configured")
	}
	if file.ReplaceDefaults {
		return file, nil
	}

	merged := DefaultRules()
	index := make(map[string]int, len(merged.Rules))
	for i, r := range merged.Rules {
		index[r.Type] = i
	}
	for _, r := range file.Rules {
		if i, ok := index[r.Type]; ok {
			merged.Rules[i] = r
			continue
		}
		merged.Rules = append(merged.Rules, r)
	}
	return merged, nil
}

// DefaultRules covers the contact details an inquiry can carry. Email runs
// before the messenger rule so "kakao: a@b.io" collapses to one mask.
func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "Email", Type: "email", Pattern: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, Mask: "[email]", Enabled: true, Severity: "high"},
		{Name: "Korean RRN", Type: "rrn", Pattern: `\b\d{6}-[1-4]\d{6}\b`, Mask: "[rrn]", Enabled: true, Severity: "high"},
		{Name: "Phone", Type: "phone", Pattern: `\+?\d[\d\s().-]{7,}\d`, Mask: "[phone]", Enabled: true, Severity: "medium"},
		{Name: "Passport", Type: "passport", Pattern: `\b[A-Z]{1,2}\d{7,8}\b`, Mask: "[passport]", Enabled: true, Severity: "medium"},
		{Name: "Messenger ID", Type: "messenger", Pattern: `(?i)\b(?:(?:kakao(?:talk)?|wechat|whatsapp|telegram|viber)(?:\s*id)?|line\s*id)\s*[:=]\s*\S+`, Mask: "[messenger]", Enabled: true, Severity: "medium"},
	}}
}
