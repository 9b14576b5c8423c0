// Package rank implements the scoring function behind ranked search. It is
// registered with SQLite as the search_rank user-defined function and runs
// once per candidate row, so it stays allocation-light and must never let an
// error escape into the storage engine.
package rank

import (
	"math"
	"strings"
	"unicode"
)

// Term weights. Relevance dominates; popularity saturates so that a swarm of
// seeders cannot push a non-matching title past a matching one.
const (
	relevanceWeight = 10.0
	seederWeight    = 4.0
	leecherWeight   = 1.0
	seederHalf      = 100.0 // seeders at which the boost reaches half strength
	leecherHalf     = 100.0
	agePenaltyCoef  = 0.5 // per doubling of age in days
	k1              = 1.2 // BM25 length normalization
	b               = 0.75
	avgTitleTokens  = 6.0
)

// Score maps (query, title, seeders, leechers, age) to a non-negative
// relevance score; higher is better. It is deterministic and total: any
// internal failure yields 0 rather than propagating across the UDF boundary.
func Score(query, title string, seeders, leechers, ageSeconds int64) (score float64) {
	defer func() {
		if recover() != nil {
			score = 0
		}
	}()
	score = score1(query, title, seeders, leechers, ageSeconds)
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		score = 0
	}
	return score
}

func score1(query, title string, seeders, leechers, ageSeconds int64) float64 {
	s := relevanceWeight * relevance(query, title)
	s += seederWeight * saturate(float64(seeders), seederHalf)
	s += leecherWeight * saturate(float64(leechers), leecherHalf)
	s -= agePenalty(ageSeconds)
	if s < 0 {
		return 0
	}
	return s
}

// relevance is a BM25-shaped match between the query tokens and the title
// tokens: exact token hits score 1, prefix hits score proportionally, and
// long titles are mildly penalised through length normalization.
func relevance(query, title string) float64 {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	tTokens := tokenize(title)
	if len(tTokens) == 0 {
		return 0
	}

	var matched float64
	for _, q := range qTokens {
		best := 0.0
		for _, t := range tTokens {
			switch {
			case q == t:
				best = 1.0
			case strings.HasPrefix(t, q):
				if f := float64(len(q)) / float64(len(t)); f > best {
					best = f
				}
			}
			if best == 1.0 {
				break
			}
		}
		matched += best
	}

	tf := matched / float64(len(qTokens))
	norm := k1*(1-b+b*float64(len(tTokens))/avgTitleTokens) + tf
	return tf * (k1 + 1) / norm
}

// saturate maps a non-negative count to [0,1) with half strength at half.
func saturate(n, half float64) float64 {
	if n <= 0 {
		return 0
	}
	return n / (n + half)
}

// agePenalty grows with the log of age so that all-else-equal newer records
// rank higher. Negative ages (clock skew) are treated as zero.
func agePenalty(ageSeconds int64) float64 {
	if ageSeconds <= 0 {
		return 0
	}
	days := float64(ageSeconds) / 86400.0
	return agePenaltyCoef * math.Log2(1+days)
}

// tokenize lower-cases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
