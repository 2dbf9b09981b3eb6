package interview

import (
	"regexp"
	"strconv"
	"strings"

	"hirelane.com/interview-orchestrator/internal/store"
)

const (
	defaultRating      = 3
	listPlaceholder    = "Not specified"
	overallPlaceholder = "No overall impression provided."

	// BackupPrefix marks the system transcript message that carries the raw
	// evaluation text, kept so structured feedback can be re-derived without
	// another LLM call.
	BackupPrefix = "[evaluation-backup]\n"
)

var (
	ratingLinePatterns = map[string]*regexp.Regexp{
		"technical":     regexp.MustCompile(`(?im)^\s*TECHNICAL_SKILLS\s*:\s*(\d+)`),
		"communication": regexp.MustCompile(`(?im)^\s*COMMUNICATION_SKILLS\s*:\s*(\d+)`),
		"problem":       regexp.MustCompile(`(?im)^\s*PROBLEM_SOLVING\s*:\s*(\d+)`),
		"culture":       regexp.MustCompile(`(?im)^\s*CULTURAL_FIT\s*:\s*(\d+)`),
	}

	sectionHeader = regexp.MustCompile(`(?im)^\s*(TECHNICAL_SKILLS|COMMUNICATION_SKILLS|PROBLEM_SOLVING|CULTURAL_FIT|STRENGTHS|AREAS_OF_IMPROVEMENT|OVERALL_IMPRESSION)\s*:`)

	bulletPrefix = regexp.MustCompile(`^\s*[-*•]\s*`)
)

// ParseEvaluation converts a freeform LLM evaluation response into a bounded
// Feedback record. Missing ratings default to 3 (neutral) so nothing
// downstream has to handle absent fields; empty lists fall back to a single
// placeholder entry. The same defaults apply on every call site.
func ParseEvaluation(responseText string) store.Feedback {
	fb := store.Feedback{
		TechnicalSkills:     extractRating(responseText, ratingLinePatterns["technical"]),
		CommunicationSkills: extractRating(responseText, ratingLinePatterns["communication"]),
		ProblemSolving:      extractRating(responseText, ratingLinePatterns["problem"]),
		CultureFit:          extractRating(responseText, ratingLinePatterns["culture"]),
		Strengths:           extractBullets(responseText, "STRENGTHS"),
		AreasOfImprovement:  extractBullets(responseText, "AREAS_OF_IMPROVEMENT"),
		OverallImpression:   extractOverall(responseText),
	}
	return fb
}

func extractRating(text string, pattern *regexp.Regexp) int {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return defaultRating
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultRating
	}
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// extractBullets takes all lines after the named section header up to the
// next labeled section (or end of text), keeps only bullet lines, and strips
// the markers.
func extractBullets(text, section string) []string {
	body := sectionBody(text, section)
	var items []string
	for _, line := range strings.Split(body, "\n") {
		if !bulletPrefix.MatchString(line) {
			continue
		}
		item := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return []string{listPlaceholder}
	}
	return items
}

func extractOverall(text string) string {
	body := strings.TrimSpace(sectionBody(text, "OVERALL_IMPRESSION"))
	if body != "" {
		return body
	}
	// No labeled section: fall back to trailing free text after the last
	// recognized section, if any.
	locs := sectionHeader.FindAllStringIndex(text, -1)
	if len(locs) > 0 {
		tail := text[locs[len(locs)-1][1]:]
		// Skip past the last section's own lines; keep only a trailing
		// paragraph that isn't bullets or digits.
		var free []string
		for _, line := range strings.Split(tail, "\n")[1:] {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || bulletPrefix.MatchString(line) {
				continue
			}
			free = append(free, trimmed)
		}
		if len(free) > 0 {
			return strings.Join(free, " ")
		}
	}
	return overallPlaceholder
}

// sectionBody returns the text between the named section header and the next
// section header (or end of input). Empty string when the section is absent.
func sectionBody(text, section string) string {
	header := regexp.MustCompile(`(?im)^\s*` + section + `\s*:`)
	loc := header.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if next := sectionHeader.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return rest
}

// FeedbackComplete reports whether a stored feedback record has all four
// ratings in range and non-empty lists, i.e. regeneration can be skipped.
func FeedbackComplete(fb *store.Feedback) bool {
	if fb == nil {
		return false
	}
	for _, r := range []int{fb.TechnicalSkills, fb.CommunicationSkills, fb.ProblemSolving, fb.CultureFit} {
		if r < 1 || r > 5 {
			return false
		}
	}
	return len(fb.Strengths) > 0 && len(fb.AreasOfImprovement) > 0
}
