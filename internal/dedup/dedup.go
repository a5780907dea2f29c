// Package dedup prevents re-adding a recurring expense that already exists
// in the ledger under a slightly different description.
package dedup

import (
	"regexp"
	"strings"
)

// MatchKind tags which rule decided that two descriptions name the same
// subscription. Rules are tried in order; the first match wins.
type MatchKind string

const (
	MatchNone        MatchKind = "none"
	MatchExact       MatchKind = "exact"
	MatchContainment MatchKind = "containment"
	MatchAlias       MatchKind = "alias"
)

// containmentRatio is the minimum share of the longer string's length the
// shorter string must reach for containment to count as a match.
const containmentRatio = 0.6

// Matcher holds the curated alias table. The table is configuration data
// (see config.ImportConfig.SubscriptionAliases), not logic.
type Matcher struct {
	aliasGroups [][]string // normalized
}

// NewMatcher builds a matcher from alias groups. Each group lists renderings
// of the same brand; members are normalized once here.
func NewMatcher(aliasGroups [][]string) *Matcher {
	m := &Matcher{}
	for _, group := range aliasGroups {
		norm := make([]string, 0, len(group))
		for _, name := range group {
			if n := Normalize(name); n != "" {
				norm = append(norm, n)
			}
		}
		if len(norm) > 1 {
			m.aliasGroups = append(m.aliasGroups, norm)
		}
	}
	return m
}

// Match reports whether candidate duplicates any of the existing recurring
// descriptions. It returns the rule that matched and the existing
// description it matched against.
func (m *Matcher) Match(candidate string, existing []string) (MatchKind, string) {
	cand := Normalize(candidate)
	if cand == "" {
		return MatchNone, ""
	}

	for _, raw := range existing {
		ex := Normalize(raw)
		if ex == "" {
			continue
		}
		if cand == ex {
			return MatchExact, raw
		}
	}
	for _, raw := range existing {
		ex := Normalize(raw)
		if ex == "" {
			continue
		}
		if contained(cand, ex) {
			return MatchContainment, raw
		}
	}
	for _, raw := range existing {
		ex := Normalize(raw)
		if ex == "" {
			continue
		}
		if m.sameAliasGroup(cand, ex) {
			return MatchAlias, raw
		}
	}
	return MatchNone, ""
}

// contained reports whether the shorter of a, b is contained in the longer
// and is at least containmentRatio of the longer's length.
func contained(a, b string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if !strings.Contains(long, short) {
		return false
	}
	return float64(len(short)) >= containmentRatio*float64(len(long))
}

func (m *Matcher) sameAliasGroup(a, b string) bool {
	for _, group := range m.aliasGroups {
		var hasA, hasB bool
		for _, member := range group {
			if member == a {
				hasA = true
			}
			if member == b {
				hasB = true
			}
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

var punct = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
var spaces = regexp.MustCompile(`\s+`)

// Normalize lowercases, strips punctuation and collapses whitespace. Both
// sides of every comparison go through it.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = punct.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
