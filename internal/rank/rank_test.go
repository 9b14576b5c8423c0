package rank

import (
	"math"
	"strings"
	"testing"
)

func TestScore_relevanceOrdering(t *testing.T) {
	const query = "ubuntu server"

	exact := Score(query, "ubuntu server", 0, 0, 0)
	partial := Score(query, "ubuntu desktop edition", 0, 0, 0)
	unrelated := Score(query, "cooking for beginners", 0, 0, 0)

	if exact <= partial {
		t.Errorf("exact match %f <= partial match %f", exact, partial)
	}
	if partial <= unrelated {
		t.Errorf("partial match %f <= unrelated %f", partial, unrelated)
	}
}

func TestScore_prefixMatches(t *testing.T) {
	// "ubun" should partially match "ubuntu" through prefix scoring.
	withPrefix := Score("ubun", "ubuntu iso", 0, 0, 0)
	without := Score("ubun", "debian iso", 0, 0, 0)

	if withPrefix <= without {
		t.Errorf("prefix match %f <= non-match %f", withPrefix, without)
	}
}

func TestScore_seedersBoost(t *testing.T) {
	const query, title = "ubuntu", "ubuntu iso"

	seeded := Score(query, title, 50, 0, 0)
	dead := Score(query, title, 0, 0, 0)
	if seeded <= dead {
		t.Errorf("seeded %f <= dead %f", seeded, dead)
	}

	// The seeder term saturates: going from 100 to 10000 seeders gains
	// less than going from 0 to 100.
	many := Score(query, title, 10000, 0, 0)
	hundred := Score(query, title, 100, 0, 0)
	if many-hundred >= hundred-dead {
		t.Errorf("seeder term did not saturate: 100->10000 gained %f, 0->100 gained %f",
			many-hundred, hundred-dead)
	}
}

func TestScore_agePenalty(t *testing.T) {
	const query, title = "ubuntu", "ubuntu iso"
	day := int64(24 * 60 * 60)

	fresh := Score(query, title, 10, 5, 0)
	old := Score(query, title, 10, 5, 365*day)
	if old >= fresh {
		t.Errorf("old %f >= fresh %f", old, fresh)
	}

	// Records dated in the future are treated as brand new, not boosted.
	future := Score(query, title, 10, 5, -day)
	if future > fresh+1e-9 {
		t.Errorf("future-dated %f > fresh %f", future, fresh)
	}
}

func TestScore_totality(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		title   string
		seeders int64
		age     int64
	}{
		{name: "empty query", query: "", title: "ubuntu"},
		{name: "empty title", query: "ubuntu", title: ""},
		{name: "both empty", query: "", title: ""},
		{name: "punctuation only", query: "!!! ???", title: "---"},
		{name: "huge age", query: "a", title: "a", age: math.MaxInt64},
		{name: "negative seeders", query: "a", title: "a", seeders: -5},
		{name: "very long title", query: "word", title: strings.Repeat("word ", 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.query, tt.title, tt.seeders, 0, tt.age)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Errorf("Score() = %f, want a finite value", got)
			}
			if got < 0 {
				t.Errorf("Score() = %f, want >= 0", got)
			}
		})
	}
}

func TestScore_caseInsensitive(t *testing.T) {
	lower := Score("ubuntu", "ubuntu server", 0, 0, 0)
	upper := Score("UBUNTU", "Ubuntu Server", 0, 0, 0)
	if math.Abs(lower-upper) > 1e-9 {
		t.Errorf("case changed the score: %f vs %f", lower, upper)
	}
}
