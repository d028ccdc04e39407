// Package leadquality ranks inquiries so operators see the promising ones
// first. Scores are advisory.
package leadquality

import (
	"fmt"
	"strings"

	"github.com/healo-ai/concierge/pkg/common/logger"
)

type Quality string

const (
	Hot  Quality = "hot"
	Warm Quality = "warm"
	Cold Quality = "cold"
	Spam Quality = "spam"
)

// Input fields left nil are not scored.
type Input struct {
	Country            string
	Language           string
	TreatmentType      string
	UTMSource          string
	MessageLength      *int
	MissingFields      *int
	EmailDomain        string
	IntakeCompleteness *float64
}

type Evaluation struct {
	Quality       Quality  `json:"quality"`
	PriorityScore int      `json:"priorityScore"`
	Tags          []string `json:"tags"`
	Signals       []string `json:"signals"`
}

type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Evaluate(in Input) (ev Evaluation) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.WithField("panic", rec).Error("lead quality evaluation failed")
			ev = Evaluation{
				Quality:       Warm,
				PriorityScore: 50,
				Tags:          []string{"evaluation-error"},
				Signals:       []string{"Failed to evaluate lead quality"},
			}
		}
	}()

	score := s.cfg.Base
	var tags, signals []string

	if in.Country != "" {
		w := s.cfg.Countries.lookup(strings.ToUpper(in.Country))
		score += w
		if w >= 8 {
			tags = append(tags, "high-value-country")
			signals = append(signals, "Target country: "+in.Country)
		}
	}

	if in.TreatmentType != "" {
		w := s.cfg.Treatments.lookup(in.TreatmentType)
		score += w
		if w >= 9 {
			tags = append(tags, "high-value-treatment")
			signals = append(signals, "Premium treatment: "+in.TreatmentType)
		}
	}

	if in.UTMSource != "" {
		w := s.cfg.UTMSources.lookup(strings.ToLower(in.UTMSource))
		score += w
		if w >= 7 {
			tags = append(tags, "quality-source")
			signals = append(signals, "Quality source: "+in.UTMSource)
		}
	}

	if in.MessageLength != nil {
		switch n := *in.MessageLength; {
		case n > 200:
			score += 10
			tags = append(tags, "detailed-inquiry")
			signals = append(signals, "Detailed message provided")
		case n < 20:
			score -= 10
			tags = append(tags, "brief-message")
			signals = append(signals, "Very short message")
		}
	}

	if in.MissingFields != nil {
		switch n := *in.MissingFields; {
		case n == 0:
			score += 15
			tags = append(tags, "complete-profile")
			signals = append(signals, "All required fields filled")
		case n >= 3:
			score -= 10
			tags = append(tags, "incomplete-profile")
			signals = append(signals, fmt.Sprintf("%d fields missing", n))
		}
	}

	if in.IntakeCompleteness != nil {
		switch c := *in.IntakeCompleteness; {
		case c >= 0.8:
			score += 10
			tags = append(tags, "high-intent")
			signals = append(signals, "Detailed medical intake provided")
		case c < 0.3:
			score -= 5
		}
	}

	if in.EmailDomain != "" {
		domain := strings.ToLower(in.EmailDomain)
		for _, d := range s.cfg.SuspiciousDomains {
			if d.Penalty < 0 && strings.Contains(domain, d.Pattern) {
				score += d.Penalty
				tags = append(tags, "suspicious-email")
				signals = append(signals, "Suspicious email domain: "+d.Pattern)
				break
			}
		}
	}

	var quality Quality
	switch {
	case score >= s.cfg.Thresholds.Hot:
		quality = Hot
		tags = append(tags, "priority-high")
	case score >= s.cfg.Thresholds.Warm:
		quality = Warm
		tags = append(tags, "priority-medium")
	case score >= s.cfg.Thresholds.Cold:
		quality = Cold
		tags = append(tags, "priority-low")
	default:
		quality = Spam
		tags = append(tags, "review-required")
	}

	return Evaluation{
		Quality:       quality,
		PriorityScore: clamp(score, 0, 100),
		Tags:          dedupe(tags),
		Signals:       dedupe(signals),
	}
}

// EmailDomain returns the part after the last @, or "".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
