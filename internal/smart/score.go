// Package smart scores KPI definitions against the SMART rubric
// (Specific, Measurable, Achievable, Relevant, Time-bound). Scoring is
// deterministic: each dimension starts from observable properties of the
// definition and yields 0-100 plus improvement suggestions.
package smart

import (
	"strings"
	"time"
	"unicode"
)

// KPI is the definition under evaluation.
type KPI struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Target      float64 `json:"target"`
	Unit        string  `json:"unit"`
	Baseline    float64 `json:"baseline"`
	Deadline    string  `json:"deadline"` // RFC 3339 date or date-time
}

// Scores holds the per-dimension rubric result.
type Scores struct {
	Specific    int      `json:"specific"`
	Measurable  int      `json:"measurable"`
	Achievable  int      `json:"achievable"`
	Relevant    int      `json:"relevant"`
	TimeBound   int      `json:"timeBound"`
	Overall     int      `json:"overall"`
	Suggestions []string `json:"suggestions,omitempty"`
}

var vagueWords = []string{
	"improve", "better", "enhance", "optimize", "increase awareness",
	"various", "some", "good", "more", "stuff",
}

var outcomeWords = []string{
	"revenue", "sales", "customer", "client", "quality", "cost", "margin",
	"satisfaction", "retention", "growth", "efficiency", "delivery",
	"conversion", "churn", "uptime", "nps",
}

// Score evaluates the KPI and returns per-dimension scores, the overall
// average, and suggestions for the weakest dimensions.
func Score(k KPI, now time.Time) Scores {
	var s Scores
	var suggestions []string

	s.Specific, suggestions = scoreSpecific(k, suggestions)
	s.Measurable, suggestions = scoreMeasurable(k, suggestions)
	s.Achievable, suggestions = scoreAchievable(k, suggestions)
	s.Relevant, suggestions = scoreRelevant(k, suggestions)
	s.TimeBound, suggestions = scoreTimeBound(k, now, suggestions)

	s.Overall = (s.Specific + s.Measurable + s.Achievable + s.Relevant + s.TimeBound) / 5
	s.Suggestions = suggestions
	return s
}

func scoreSpecific(k KPI, sugg []string) (int, []string) {
	score := 0
	title := strings.TrimSpace(k.Title)

	switch {
	case len(title) >= 20:
		score += 40
	case len(title) >= 8:
		score += 25
	case title != "":
		score += 10
	default:
		sugg = append(sugg, "Give the KPI a descriptive title.")
	}

	desc := strings.TrimSpace(k.Description)
	switch {
	case len(desc) >= 80:
		score += 40
	case len(desc) >= 20:
		score += 25
	case desc != "":
		score += 10
	default:
		sugg = append(sugg, "Describe what is measured and how it is collected.")
	}

	lower := strings.ToLower(title + " " + desc)
	vague := false
	for _, w := range vagueWords {
		if strings.Contains(lower, w) {
			vague = true
			break
		}
	}
	if !vague {
		score += 20
	} else {
		sugg = append(sugg, "Replace vague wording with a concrete, observable outcome.")
	}
	return clamp(score), sugg
}

func scoreMeasurable(k KPI, sugg []string) (int, []string) {
	score := 0
	if k.Target != 0 {
		score += 45
	} else {
		sugg = append(sugg, "Set a numeric target value.")
	}
	if strings.TrimSpace(k.Unit) != "" {
		score += 35
	} else {
		sugg = append(sugg, "Specify the unit of measurement (%, count, currency).")
	}
	if k.Baseline != 0 {
		score += 20
	}
	// A number already in the title is a strong measurability signal.
	if score < 100 && containsDigit(k.Title) {
		score += 10
	}
	return clamp(score), sugg
}

func scoreAchievable(k KPI, sugg []string) (int, []string) {
	if k.Target == 0 {
		return 30, sugg // nothing to judge against
	}

	if isPercentUnit(k.Unit) && (k.Target < 0 || k.Target > 100) {
		sugg = append(sugg, "A percentage target must fall between 0 and 100.")
		return 10, sugg
	}

	if k.Baseline == 0 {
		return 60, sugg // plausible but unverifiable without a baseline
	}

	ratio := k.Target / k.Baseline
	switch {
	case ratio >= 0.5 && ratio <= 2.0:
		return 100, sugg
	case ratio > 2.0 && ratio <= 4.0:
		sugg = append(sugg, "Target is a large jump from the baseline; confirm it is realistic.")
		return 55, sugg
	case ratio > 0 && ratio < 0.5:
		return 70, sugg
	default:
		sugg = append(sugg, "Target and baseline disagree in sign or scale.")
		return 25, sugg
	}
}

func scoreRelevant(k KPI, sugg []string) (int, []string) {
	lower := strings.ToLower(k.Title + " " + k.Description)
	for _, w := range outcomeWords {
		if strings.Contains(lower, w) {
			return 90, sugg
		}
	}
	if strings.TrimSpace(k.Description) != "" {
		sugg = append(sugg, "Tie the KPI to a business outcome (revenue, quality, customer impact).")
		return 50, sugg
	}
	sugg = append(sugg, "Explain why this KPI matters to the team's objectives.")
	return 30, sugg
}

func scoreTimeBound(k KPI, now time.Time, sugg []string) (int, []string) {
	deadline := strings.TrimSpace(k.Deadline)
	if deadline == "" {
		sugg = append(sugg, "Set a deadline for reaching the target.")
		return 0, sugg
	}

	t, err := parseDeadline(deadline)
	if err != nil {
		sugg = append(sugg, "Use an ISO date (YYYY-MM-DD) for the deadline.")
		return 20, sugg
	}

	switch {
	case t.Before(now):
		sugg = append(sugg, "The deadline is in the past.")
		return 25, sugg
	case t.After(now.AddDate(3, 0, 0)):
		sugg = append(sugg, "A deadline more than three years out is hard to plan against.")
		return 60, sugg
	default:
		return 100, sugg
	}
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func isPercentUnit(unit string) bool {
	u := strings.ToLower(strings.TrimSpace(unit))
	return u == "%" || u == "percent" || u == "percentage" || u == "pct"
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func clamp(n int) int {
	if n > 100 {
		return 100
	}
	if n < 0 {
		return 0
	}
	return n
}
