package recommend

import (
	"fmt"
	"regexp"
	"strings"
)

// IncompleteResponseError lists the section headers missing from a completion.
type IncompleteResponseError struct {
	Missing []string
}

func (e *IncompleteResponseError) Error() string {
	return fmt.Sprintf("incomplete response: missing required sections %s", strings.Join(e.Missing, ", "))
}

type Sections struct {
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	Recommendations []string `json:"recommendations"`
	Impacts         []string `json:"impacts"`
}

// CheckComplete reports every header that does not occur in text.
func CheckComplete(text string) error {
	var missing []string
	for _, h := range headers {
		if !strings.Contains(text, h) {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return &IncompleteResponseError{Missing: missing}
	}
	return nil
}

var numbered = regexp.MustCompile(`^\d+\.\s*`)

// Parse splits text into the four sections. A line containing a header opens
// that section; bullet lines ("- ", "• " or "N.") under an open section are
// kept without their marker. Everything else is ignored.
func Parse(text string) (Sections, error) {
	if err := CheckComplete(text); err != nil {
		return Sections{}, err
	}
	var s Sections
	slots := map[string]*[]string{
		HeaderStrengths:       &s.Strengths,
		HeaderImprovements:    &s.Improvements,
		HeaderRecommendations: &s.Recommendations,
		HeaderImpacts:         &s.Impacts,
	}
	var current *[]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if h := headerIn(line); h != "" {
			current = slots[h]
			continue
		}
		if current == nil {
			continue
		}
		if item, ok := bullet(line); ok && item != "" {
			*current = append(*current, item)
		}
	}
	return s, nil
}

func headerIn(line string) string {
	for _, h := range headers {
		if strings.Contains(line, h) {
			return h
		}
	}
	return ""
}

func bullet(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "- "):
		return strings.TrimSpace(line[2:]), true
	case strings.HasPrefix(line, "• "):
		return strings.TrimSpace(strings.TrimPrefix(line, "• ")), true
	case numbered.MatchString(line):
		return strings.TrimSpace(numbered.ReplaceAllString(line, "")), true
	}
	return "", false
}
