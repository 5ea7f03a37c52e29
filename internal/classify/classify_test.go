package classify

import (
	"testing"

	"kynews/internal/core"
)

func TestTier1TitleExplicitTerm(t *testing.T) {
	c := New("KY")
	got := c.Classify("Flood warning in Pike County", "Heavy rains across Kentucky")

	if got.RegionScope != core.ScopeKY {
		t.Fatalf("scope = %q, want ky", got.RegionScope)
	}
	if got.Tier != core.TierTitle {
		t.Errorf("tier = %q, want %q", got.Tier, core.TierTitle)
	}
	if !hasLocation(got.Locations, "KY", "Pike") {
		t.Errorf("locations = %+v, want (KY, Pike)", got.Locations)
	}
}

func TestTier1UnambiguousCityInTitle(t *testing.T) {
	c := New("KY")
	got := c.Classify("Paducah riverfront project breaks ground", "Construction begins this week.")
	if got.RegionScope != core.ScopeKY || got.Tier != core.TierTitle {
		t.Errorf("got %+v, want tier1 ky", got)
	}
}

func TestTier1AmbiguousCityNeedsSignal(t *testing.T) {
	c := New("KY")

	// No corroboration anywhere: not tier 1.
	got := c.Classify("Franklin mayor resigns", "The mayor announced the resignation Tuesday.")
	if got.RegionScope == core.ScopeKY {
		t.Fatalf("ambiguous city alone classified as ky: %+v", got)
	}
	if got.FailedTier != core.TierAmbiguousCity {
		t.Errorf("failedTier = %q, want %q", got.FailedTier, core.TierAmbiguousCity)
	}

	// Body signal corroborates the ambiguous title.
	got = c.Classify("Franklin mayor resigns", "The Kentucky city of Franklin will hold a special election.")
	if got.RegionScope != core.ScopeKY || got.Tier != core.TierTitle {
		t.Errorf("got %+v, want tier1 ky with signal", got)
	}
}

func TestTier2BodyMentions(t *testing.T) {
	c := New("KY")
	got := c.Classify(
		"Storm system moves through the region",
		"Damage was reported in Owensboro and near Paducah, officials said.",
	)
	if got.RegionScope != core.ScopeKY {
		t.Fatalf("scope = %q, want ky", got.RegionScope)
	}
	if got.Tier != core.TierBody {
		t.Errorf("tier = %q, want %q", got.Tier, core.TierBody)
	}
}

func TestTier2SingleMentionInsufficient(t *testing.T) {
	c := New("KY")
	got := c.Classify(
		"Storm system moves through the region",
		"Damage was reported near Owensboro, officials said.",
	)
	if got.RegionScope != core.ScopeNational {
		t.Errorf("scope = %q, want national for one body mention", got.RegionScope)
	}
}

func TestNationalFallthrough(t *testing.T) {
	c := New("KY")
	got := c.Classify("Markets rally on jobs report", "Stocks climbed across the board on Wall Street.")
	if got.RegionScope != core.ScopeNational {
		t.Errorf("scope = %q, want national", got.RegionScope)
	}
	if got.Tier != "" || got.FailedTier != "" {
		t.Errorf("tiers should be empty for plain national: %+v", got)
	}
}

func TestCountyExtraction(t *testing.T) {
	c := New("KY")
	got := c.Classify(
		"Tornado touches down",
		"The storm crossed Muhlenberg County before weakening over Ohio Co. in western Kentucky.",
	)
	if !hasLocation(got.Locations, "KY", "Muhlenberg") {
		t.Errorf("missing Muhlenberg: %+v", got.Locations)
	}
	if !hasLocation(got.Locations, "KY", "Ohio") {
		t.Errorf("missing Ohio (Co. abbreviation): %+v", got.Locations)
	}
}

func TestCountyPrefixShadowing(t *testing.T) {
	c := New("KY")
	got := c.Classify("River levels rise", "Flooding closed two parks in Greenup County, Kentucky.")
	if !hasLocation(got.Locations, "KY", "Greenup") {
		t.Fatalf("missing Greenup: %+v", got.Locations)
	}
	if hasLocation(got.Locations, "KY", "Green") {
		t.Errorf("Greenup County also matched Green County: %+v", got.Locations)
	}
}

func TestMultiWordWhitespaceTolerantMatch(t *testing.T) {
	c := New("KY")
	got := c.Classify("Roads reopen", "Crews in Bowling  Green finished repairs, the Kentucky cabinet said.")
	if !hasLocation(got.Locations, "KY", "Warren") {
		t.Errorf("multi-word city with doubled space did not map to Warren: %+v", got.Locations)
	}
}

func TestCityMappingRequiresSignal(t *testing.T) {
	c := New("KY")

	got := c.Classify("Hazard crews respond to fire", "Firefighters contained the blaze downtown.")
	if hasLocation(got.Locations, "KY", "Perry") {
		t.Errorf("city mapped to county without KY signal: %+v", got.Locations)
	}

	got = c.Classify("Hazard crews respond to fire", "Firefighters in the Kentucky town contained the blaze.")
	if !hasLocation(got.Locations, "KY", "Perry") {
		t.Errorf("city not mapped to county despite KY signal: %+v", got.Locations)
	}
}

func TestOtherStates(t *testing.T) {
	c := New("KY")
	got := c.Classify(
		"Bridge project links two states",
		"The span connects Kentucky with Indiana across the Ohio River near Tennessee travelers' routes.",
	)
	if !contains(got.OtherStates, "IN") || !contains(got.OtherStates, "TN") {
		t.Errorf("otherStates = %v, want IN and TN", got.OtherStates)
	}
	if contains(got.OtherStates, "KY") {
		t.Errorf("home state leaked into otherStates: %v", got.OtherStates)
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := New("KY")
	title, body := "Flood warning in Pike County", "Heavy rains across Kentucky"
	first := c.Classify(title, body)
	for i := 0; i < 5; i++ {
		again := c.Classify(title, body)
		if again.RegionScope != first.RegionScope || again.Tier != first.Tier ||
			len(again.Locations) != len(first.Locations) {
			t.Fatalf("classification not stable: %+v vs %+v", first, again)
		}
	}
}

func TestCountiesIn(t *testing.T) {
	got := CountiesIn("Crews search the Pike and Floyd river bottoms")
	if !contains(got, "Pike") || !contains(got, "Floyd") {
		t.Errorf("CountiesIn = %v, want Pike and Floyd", got)
	}

	if got := CountiesIn("Senate passes the farm bill"); len(got) != 0 {
		t.Errorf("CountiesIn = %v, want none", got)
	}
}

func hasLocation(locations []core.ItemLocation, state, county string) bool {
	for _, loc := range locations {
		if loc.StateCode == state && loc.County == county {
			return true
		}
	}
	return false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
