// Package classify assigns region scope and county tags to articles.
// Classification is a pure function of (title, body).
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"kynews/internal/core"
)

// bodyMentionThreshold is the tier-2 floor: at least this many body
// mentions of Kentucky terms make an article relevant.
const bodyMentionThreshold = 2

// Classifier holds the compiled geography patterns.
type Classifier struct {
	stateCode string

	kySignalRe  *regexp.Regexp
	countyRes   []countyPattern // longest name first to prevent prefix shadowing
	cityRes     []cityPattern
	stateRes    []statePattern
}

type countyPattern struct {
	name string
	re   *regexp.Regexp
}

type cityPattern struct {
	name      string
	county    string
	ambiguous bool
	re        *regexp.Regexp
}

type statePattern struct {
	name   string
	abbrev string
	re     *regexp.Regexp
}

// New compiles a classifier for the given home state (KY data).
func New(stateCode string) *Classifier {
	c := &Classifier{
		stateCode: strings.ToUpper(stateCode),
		// "Kentucky" in any case, or the bare postal abbreviation.
		kySignalRe: regexp.MustCompile(`(?i)\bkentucky\b|\bKY\b|\bKy\.`),
	}

	counties := append([]string(nil), kentuckyCounties...)
	sort.Slice(counties, func(i, j int) bool { return len(counties[i]) > len(counties[j]) })
	for _, name := range counties {
		c.countyRes = append(c.countyRes, countyPattern{
			name: name,
			re:   compileCountyPattern(name),
		})
	}

	cities := make([]string, 0, len(cityCounties))
	for name := range cityCounties {
		cities = append(cities, name)
	}
	sort.Slice(cities, func(i, j int) bool {
		if len(cities[i]) != len(cities[j]) {
			return len(cities[i]) > len(cities[j])
		}
		return cities[i] < cities[j]
	})
	for _, name := range cities {
		c.cityRes = append(c.cityRes, cityPattern{
			name:      name,
			county:    cityCounties[name],
			ambiguous: ambiguousCities[name],
			re:        compileNamePattern(name),
		})
	}

	for _, name := range usStates {
		c.stateRes = append(c.stateRes, statePattern{
			name:   name,
			abbrev: stateAbbrevs[name],
			re:     compileNamePattern(name),
		})
	}

	return c
}

// compileCountyPattern matches "<name> County" or "<name> Co." with
// whitespace-tolerant multi-word names.
func compileCountyPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + namePattern(name) + `\s+(county|co\.?)\b`)
}

func compileNamePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + namePattern(name) + `\b`)
}

// namePattern quotes a place name and makes interior whitespace tolerant
// so "Bowling  Green" and "New Madrid"-style names still match.
func namePattern(name string) string {
	parts := strings.Fields(regexp.QuoteMeta(name))
	return strings.Join(parts, `\s+`)
}

// Classify runs the tier-based relevance gate and geo extraction.
func (c *Classifier) Classify(title, body string) core.Classification {
	full := title + "\n" + body
	hasSignal := c.kySignalRe.MatchString(full)

	result := core.Classification{
		RegionScope: core.ScopeNational,
		Locations:   c.extractLocations(full, hasSignal),
		OtherStates: c.extractOtherStates(full),
	}

	// Tier 1: title-strong. An explicit KY term, an unambiguous city, or
	// an ambiguous city corroborated by an article-wide KY signal.
	if c.titleRelevant(title, hasSignal) {
		result.RegionScope = core.ScopeKY
		result.Tier = core.TierTitle
		return result
	}

	// Tier 2: enough body mentions of the base term set. Ambiguous
	// cities only count when the article carries a KY signal.
	if c.countBodyMentions(body, hasSignal) >= bodyMentionThreshold {
		result.RegionScope = core.ScopeKY
		result.Tier = core.TierBody
		return result
	}

	// Tier 3: an ambiguous city with nothing to back it up is recorded
	// as an explicit rejection.
	if c.mentionsAmbiguousCity(full) && !hasSignal {
		result.FailedTier = core.TierAmbiguousCity
	}

	return result
}

func (c *Classifier) titleRelevant(title string, hasSignal bool) bool {
	if c.kySignalRe.MatchString(title) {
		return true
	}
	for _, city := range c.cityRes {
		if !city.re.MatchString(title) {
			continue
		}
		if !city.ambiguous || hasSignal {
			return true
		}
	}
	return false
}

// countBodyMentions counts occurrences in the body (not the title) of
// explicit KY terms and city names.
func (c *Classifier) countBodyMentions(body string, hasSignal bool) int {
	count := len(c.kySignalRe.FindAllString(body, -1))
	for _, city := range c.cityRes {
		if city.ambiguous && !hasSignal {
			continue
		}
		count += len(city.re.FindAllString(body, -1))
	}
	return count
}

func (c *Classifier) mentionsAmbiguousCity(text string) bool {
	for _, city := range c.cityRes {
		if city.ambiguous && city.re.MatchString(text) {
			return true
		}
	}
	return false
}

// extractLocations scans for "<county> County" references and, when the
// article carries a KY signal, maps city names to their counties.
func (c *Classifier) extractLocations(text string, hasSignal bool) []core.ItemLocation {
	seen := make(map[string]bool)
	var locations []core.ItemLocation

	add := func(county string) {
		if seen[county] {
			return
		}
		seen[county] = true
		locations = append(locations, core.ItemLocation{StateCode: c.stateCode, County: county})
	}

	for _, county := range c.countyRes {
		if county.re.MatchString(text) {
			add(county.name)
		}
	}

	if hasSignal {
		for _, city := range c.cityRes {
			if city.re.MatchString(text) {
				add(city.county)
			}
		}
	}

	return locations
}

// extractOtherStates returns the postal codes of non-home states named in
// the text, for UI disclosure on multi-state stories.
func (c *Classifier) extractOtherStates(text string) []string {
	var out []string
	for _, state := range c.stateRes {
		if state.abbrev == c.stateCode {
			continue
		}
		if state.re.MatchString(text) {
			out = append(out, state.abbrev)
		}
	}
	return out
}

// Bare county names (no "County" suffix required), compiled once for
// search-term widening on the read path.
var (
	countyNameOnce sync.Once
	countyNameRes  []countyPattern
)

// CountiesIn reports which Kentucky county names appear in the text,
// longest name first. Used to widen search results to geo-tagged items
// when the query names a county.
func CountiesIn(text string) []string {
	countyNameOnce.Do(func() {
		names := append([]string(nil), kentuckyCounties...)
		sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
		for _, name := range names {
			countyNameRes = append(countyNameRes, countyPattern{
				name: name,
				re:   compileNamePattern(name),
			})
		}
	})

	var out []string
	for _, county := range countyNameRes {
		if county.re.MatchString(text) {
			out = append(out, county.name)
		}
	}
	return out
}

// String describes the classifier configuration, used in startup logs.
func (c *Classifier) String() string {
	return fmt.Sprintf("classifier(state=%s counties=%d cities=%d)", c.stateCode, len(c.countyRes), len(c.cityRes))
}
