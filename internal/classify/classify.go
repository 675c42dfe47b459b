// Package classify turns the scheme catalog into ordered tabs and per-tab buckets
// keyed by the payment frequency of each scheme's active chits.
package classify

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Dan9191/scheme-service/internal/models"
)

// FlexiTab is the synthetic tab collecting every flexible-cadence chit.
const FlexiTab = "Flexi"

const unranked = 999

var ranks = map[string]int{
	"daily":   1,
	"weekly":  2,
	"monthly": 3,
	"flexi":   4,
}

// TabBucket is a selectable category and its sort rank.
type TabBucket struct {
	Label string `json:"label"`
	Rank  int    `json:"rank"`
}

// Normalize trims and case-folds a frequency label.
func Normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// IsFlexi reports whether a normalized frequency belongs to the Flexi family.
func IsFlexi(normalized string) bool {
	// "flexible" contains "flexi"; both spellings are listed for clarity.
	return strings.Contains(normalized, "flexi") || strings.Contains(normalized, "flexible")
}

// Matches is the bucketing rule: exact match on the normalized tab, or Flexi
// family membership when the tab is the synthetic Flexi tab.
func Matches(normalizedFrequency, tab string) bool {
	t := Normalize(tab)
	if normalizedFrequency == t {
		return true
	}
	return t == Normalize(FlexiTab) && IsFlexi(normalizedFrequency)
}

// Rank returns the fixed order of a tab label.
func Rank(label string) int {
	if r, ok := ranks[Normalize(label)]; ok {
		return r
	}
	return unranked
}

// Tabs derives the ordered tab set from the active chits of active schemes.
// Unranked labels keep their first-seen order.
func Tabs(schemes []models.Scheme) []TabBucket {
	seen := make(map[string]bool)
	var tabs []TabBucket
	add := func(normalized string) {
		if normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		tabs = append(tabs, TabBucket{Label: displayLabel(normalized), Rank: Rank(normalized)})
	}

	for _, s := range schemes {
		if !s.Active {
			continue
		}
		for _, c := range s.Chits {
			if !c.Active {
				continue
			}
			n := Normalize(c.Frequency)
			add(n)
			if IsFlexi(n) {
				add(Normalize(FlexiTab))
			}
		}
	}

	sort.SliceStable(tabs, func(i, j int) bool { return tabs[i].Rank < tabs[j].Rank })
	return tabs
}

// Contains reports whether tab is present in tabs, compared after normalization.
func Contains(tabs []TabBucket, tab string) bool {
	n := Normalize(tab)
	for _, t := range tabs {
		if Normalize(t.Label) == n {
			return true
		}
	}
	return false
}

func displayLabel(normalized string) string {
	if normalized == Normalize(FlexiTab) {
		return FlexiTab
	}
	r := []rune(normalized)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
