package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions.
const maxLevenshteinDistance = 3

// knownKeys maps each section to the keys it accepts.
var knownKeys = map[string][]string{
	"logging": {"log_level"},
	"network": {"connect_timeout", "data_timeout", "max_retries", "user_agent"},
	"walk":    {"parallel_listings"},
	"account": {"color", "name", "provider", "read_only", "url", "username"},
}

// knownSections is the sorted list of section names.
var knownSections = func() []string {
	s := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		s = append(s, k)
	}

	sort.Strings(s)

	return s
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with suggestions for each.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	section := key[0]

	keys, ok := knownKeys[section]
	if !ok || len(key) == 1 {
		return suggest("unknown config section", section, knownSections)
	}

	return suggest(fmt.Sprintf("unknown config key in [%s]", section), strings.Join(key[1:], "."), keys)
}

func suggest(prefix, name string, known []string) error {
	if s := closestMatch(name, known); s != "" {
		return fmt.Errorf("%s %q, did you mean %q?", prefix, name, s)
	}

	return fmt.Errorf("%s %q", prefix, name)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
