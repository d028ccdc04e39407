package dlp

import (
	"fmt"
	"regexp"
	"sort"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Finding is one match; Value is never logged.
type Finding struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type Detector struct {
	rules []compiledRule
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %s: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

// MustDefault is used where a detector is optional and the built-in rules
// are known to compile.
func MustDefault() *Detector {
	d, err := NewDetector(DefaultRules())
	if err != nil {
		panic(err)
	}
	return d
}

// Redact replaces every match with the rule mask. Rules apply in order, so
// email runs before phone and a masked email cannot be re-matched as digits.
func (d *Detector) Redact(text string) string {
	if d == nil || text == "" {
		return text
	}
	for _, r := range d.rules {
		text = r.re.ReplaceAllString(text, r.rule.Mask)
	}
	return text
}

// Detect walks a decoded JSON object and reports where PII-looking strings sit.
func (d *Detector) Detect(data map[string]interface{}) []Finding {
	if d == nil {
		return nil
	}
	var findings []Finding
	var walk func(path string, value interface{})
	walk = func(path string, value interface{}) {
		switch v := value.(type) {
		case string:
			for _, r := range d.rules {
				for _, m := range r.re.FindAllStringIndex(v, -1) {
					findings = append(findings, Finding{Path: path, Type: r.rule.Type, Start: m[0], End: m[1]})
				}
			}
		case map[string]interface{}:
			for k, nested := range v {
				walk(joinPath(path, k), nested)
			}
		case []interface{}:
			for i, nested := range v {
				walk(fmt.Sprintf("%s[%d]", path, i), nested)
			}
		}
	}
	for k, v := range data {
		walk(k, v)
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Start < findings[j].Start
	})
	return findings
}

// Types returns the distinct finding types.
func Types(findings []Finding) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range findings {
		if _, ok := seen[f.Type]; ok {
			continue
		}
		seen[f.Type] = struct{}{}
		out = append(out, f.Type)
	}
	sort.Strings(out)
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
