package announce

import (
	"regexp"
	"strings"
)

type warningTerm struct {
	canonical string
	re        *regexp.Regexp
}

// warningMatcher finds content-warning trigger terms in tags and titles.
// Matching is on word boundaries, a substring inside a longer word never
// counts ("died" must not match "studied").
type warningMatcher struct {
	terms []warningTerm
}

func newWarningMatcher(terms []string, fold func(string) string) *warningMatcher {
	m := &warningMatcher{}

	for _, term := range terms {
		canonical := strings.TrimSpace(fold(term))
		if canonical == "" {
			continue
		}

		m.terms = append(m.terms, warningTerm{
			canonical: canonical,
			re:        regexp.MustCompile(`\b` + regexp.QuoteMeta(canonical) + `\b`),
		})
	}

	return m
}

// Match returns the canonical trigger terms found in any of the given
// texts, deduplicated, in configuration order. Texts must already be
// case-folded.
func (m *warningMatcher) Match(texts ...string) []string {
	var matched []string

	for _, term := range m.terms {
		for _, text := range texts {
			if term.re.MatchString(text) {
				matched = append(matched, term.canonical)

				break
			}
		}
	}

	return matched
}
