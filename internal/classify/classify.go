// Package classify scores channels for regional relevance. A channel earns
// weight for a declared country matching the target region, for title and
// description text written in one of the target languages, and for appearing
// on the curated seed list. Channels at or above the threshold are verified
// and enter the harvesting rotation.
package classify

import (
	"sort"
	"strings"

	"github.com/RadhiFadlillah/whatlanggo"
)

// Signals carries the observable inputs for one channel at scoring time.
type Signals struct {
	// Country is the channel's self-declared country code, nil when the
	// channel never declared one. An absent country is neutral, not a
	// negative signal.
	Country *string

	// TextSamples holds title and description text used for language
	// detection. Empty or whitespace-only samples are ignored.
	TextSamples []string

	// SeedListed reports whether the channel appears on the curated seed
	// list.
	SeedListed bool
}

// Result is the outcome of scoring one channel. Inputs preserves the signal
// values that produced the score so a later audit can explain it; it is
// persisted alongside the score.
type Result struct {
	Score    float64
	Verified bool
	Inputs   map[string]interface{}
}

// Config holds the scoring weights and the verification threshold.
type Config struct {
	// Region is the target ISO 3166-1 alpha-2 country code, e.g. "LK".
	Region string

	// Languages are the target language codes in ISO 639-3, e.g. "sin".
	Languages []string

	// Threshold is the minimum score, inclusive, for verification.
	Threshold float64

	CountryWeight  float64
	LanguageWeight float64
	SeedWeight     float64
}

// Scorer computes relevance scores. Scoring is deterministic: the same
// signals always produce the same result, so re-scoring a channel simply
// overwrites its previous score.
type Scorer struct {
	cfg   Config
	langs map[string]bool
}

// NewScorer builds a Scorer from the given weights and targets.
func NewScorer(cfg Config) *Scorer {
	langs := make(map[string]bool, len(cfg.Languages))
	for _, code := range cfg.Languages {
		langs[strings.ToLower(strings.TrimSpace(code))] = true
	}
	return &Scorer{cfg: cfg, langs: langs}
}

// Score computes the relevance score for one set of signals.
//
// The score is a weighted sum: the full country weight when the declared
// country matches the region, the language weight scaled by the fraction of
// text samples detected as a target language, and the full seed weight for
// seed-listed channels. If any full-weight signal is present the score never
// falls below that signal's weight, so one failed heuristic cannot discard a
// channel another heuristic is confident about. The final score is clamped
// to [0, 1].
func (s *Scorer) Score(sig Signals) Result {
	countryMatch := sig.Country != nil && strings.EqualFold(strings.TrimSpace(*sig.Country), s.cfg.Region)
	langFraction, sampled := s.languageFraction(sig.TextSamples)

	score := s.cfg.LanguageWeight * langFraction
	floor := 0.0
	if countryMatch {
		score += s.cfg.CountryWeight
		if s.cfg.CountryWeight > floor {
			floor = s.cfg.CountryWeight
		}
	}
	if sig.SeedListed {
		score += s.cfg.SeedWeight
		if s.cfg.SeedWeight > floor {
			floor = s.cfg.SeedWeight
		}
	}
	if langFraction == 1 && sampled > 0 && s.cfg.LanguageWeight > floor {
		floor = s.cfg.LanguageWeight
	}

	if score < floor {
		score = floor
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	inputs := map[string]interface{}{
		"country_match":     countryMatch,
		"language_fraction": langFraction,
		"samples":           sampled,
		"seed_listed":       sig.SeedListed,
	}
	if sig.Country != nil {
		inputs["country"] = *sig.Country
	}

	return Result{
		Score:    score,
		Verified: score >= s.cfg.Threshold,
		Inputs:   inputs,
	}
}

// languageFraction returns the fraction of non-empty samples whose detected
// language is one of the targets, and the number of samples considered.
// No usable samples yields a neutral zero.
func (s *Scorer) languageFraction(samples []string) (float64, int) {
	if len(s.langs) == 0 {
		return 0, 0
	}
	var total, matched int
	for _, sample := range samples {
		text := strings.TrimSpace(sample)
		if text == "" {
			continue
		}
		total++
		info := whatlanggo.Detect(text)
		if s.langs[info.Lang.Iso6393()] {
			matched++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(matched) / float64(total), total
}

// TargetLanguages returns the configured target language codes in sorted
// order, primarily for logging at startup.
func (s *Scorer) TargetLanguages() []string {
	out := make([]string, 0, len(s.langs))
	for code := range s.langs {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
