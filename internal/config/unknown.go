package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"bling": {
		"client_id", "client_secret", "refresh_token", "token_path",
		"base_url", "token_url", "auth_url", "redirect_url",
		"request_timeout", "refresh_timeout", "product_lookup_concurrency",
	},
	"server":  {"listen", "static_dir", "shutdown_timeout", "pid_file"},
	"picking": {"movement_note"},
	"ledger":  {"enabled", "db_path"},
	"logging": {"log_level", "log_format", "log_file"},
}

// knownSections is the sorted section list for Levenshtein matching.
var knownSections = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		// A whole unknown section yields one undecoded key per entry;
		// report the section once.
		if len(key) > 0 && knownKeys[key[0]] == nil {
			if !reported[key[0]] {
				reported[key[0]] = true
				errs = append(errs, unknownKeyError("top-level key", key[0], knownSections))
			}

			continue
		}

		if len(key) < 2 {
			continue
		}

		errs = append(errs, unknownKeyError("config key", key.String(), qualified(key[0])))
	}

	return errors.Join(errs...)
}

// qualified returns the section's keys as "section.key", sorted.
func qualified(section string) []string {
	keys := make([]string, 0, len(knownKeys[section]))
	for _, k := range knownKeys[section] {
		keys = append(keys, section+"."+k)
	}

	sort.Strings(keys)

	return keys
}

func unknownKeyError(kind, name string, known []string) error {
	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("unknown %s %q, did you mean %q?", kind, name, suggestion)
	}

	return fmt.Errorf("unknown %s %q", kind, name)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(strings.ToLower(unknown), k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings with a
// two-row table.
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
