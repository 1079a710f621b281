package database

import (
	"regexp"
	"strings"
)

// buildSearchPattern compiles a word-sequence matcher for name searches.
//
// The query is split on spaces and each word must appear in the entity's
// hierarchy path, in order, with anything in between: "kitchen pendant"
// becomes `.*kitchen.*pendant.*` against the lowercased path. A word
// that belongs to a synonym group expands to an alternation over the
// whole group, so "lamp" also finds "Pendant Lights" when the
// configuration groups lamp/light/lights.
func buildSearchPattern(query string, synonyms [][]string) (*regexp.Regexp, error) {
	groups := make([]map[string]bool, 0, len(synonyms))
	for _, group := range synonyms {
		set := make(map[string]bool, len(group))
		for _, word := range group {
			set[strings.ToLower(word)] = true
		}
		groups = append(groups, set)
	}

	wordPattern := func(word string) string {
		for i, set := range groups {
			if set[word] {
				alts := make([]string, 0, len(set))
				for _, w := range synonyms[i] {
					alts = append(alts, regexp.QuoteMeta(strings.ToLower(w)))
				}
				return "(" + strings.Join(alts, "|") + ")"
			}
		}
		return regexp.QuoteMeta(word)
	}

	var pattern strings.Builder
	for _, word := range strings.Fields(strings.ToLower(query)) {
		pattern.WriteString(".*")
		pattern.WriteString(wordPattern(word))
	}
	pattern.WriteString(".*")

	return regexp.Compile(pattern.String())
}

func matchPath(re *regexp.Regexp, e Entity) bool {
	return re.MatchString(strings.ToLower(e.Path))
}
