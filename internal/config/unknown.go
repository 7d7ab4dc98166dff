package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section, sorted so suggestions are
// deterministic when two candidates have the same edit distance.
var knownKeys = map[string][]string{
	"service": {
		"password", "redis_key", "redis_url", "session_backend",
		"session_cache", "session_ttl", "url", "username",
	},
	"network": {
		"connect_timeout", "max_retries", "request_timeout",
		"requests_per_second", "user_agent",
	},
	"logging": {"log_format", "log_level"},
}

// knownSections is the sorted list of section names.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	// An unknown section is reported once, not once per key inside it.
	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		if _, known := knownKeys[key[0]]; !known && len(key) > 1 {
			if reported[key[0]] {
				continue
			}

			key = key[:1]
		}

		if len(key) == 1 {
			if reported[key[0]] {
				continue
			}

			reported[key[0]] = true
		}

		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest known
// section or key.
func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		name := key[0]
		if _, isSection := knownKeys[name]; isSection {
			return fmt.Errorf("config key %q must be a section, e.g. [%s]", name, name)
		}

		for _, section := range knownSections {
			if slices.Contains(knownKeys[section], name) {
				return fmt.Errorf("config key %q belongs in the [%s] section", name, section)
			}
		}

		return withSuggestion(fmt.Sprintf("unknown config section %q", name), name, knownSections)
	}

	section, field := key[0], strings.Join(key[1:], ".")

	fields, ok := knownKeys[section]
	if !ok {
		return withSuggestion(fmt.Sprintf("unknown config section %q", section), section, knownSections)
	}

	return withSuggestion(fmt.Sprintf("unknown config key %q in [%s]", field, section), field, fields)
}

func withSuggestion(msg, unknown string, known []string) error {
	if suggestion := closestMatch(unknown, known); suggestion != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
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

	// Single-row optimization, no full matrix.
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
