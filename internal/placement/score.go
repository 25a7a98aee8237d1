// Package placement implements the proximity/space-pressure ranking
// algorithm from spec.md §4.1: clients and the replication worker both
// consult it to pick storage servers for a chunk.
package placement

import (
	"sort"

	"distfs/internal/model"
)

// Weights are the scoring coefficients; smaller score wins.
type Weights struct {
	Distance float64
	Space    float64
}

// DefaultWeights matches spec.md's documented defaults.
var DefaultWeights = Weights{Distance: 0.6, Space: 0.4}

// Candidate is one storage server eligible for a placement decision.
type Candidate struct {
	ID       string
	Address  string
	Location model.Location
	Free     int64
	Limit    int64
}

// Ranked is one scored candidate in ascending (best-first) order.
type Ranked struct {
	Candidate
	Score float64
}

// Rank scores and sorts candidates for a client at loc needing needed
// bytes of free space. Candidates with insufficient free space are
// excluded before scoring. Ties are broken by ascending candidate ID for
// a stable, reproducible order.
func Rank(loc model.Location, candidates []Candidate, needed int64, w Weights) []Ranked {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Free >= needed {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	dists := make([]float64, len(eligible))
	maxDist := 0.0
	for i, c := range eligible {
		dists[i] = loc.Distance(c.Location)
		if dists[i] > maxDist {
			maxDist = dists[i]
		}
	}
	if maxDist == 0 {
		maxDist = 1 // avoid divide-by-zero when every candidate coincides with the client
	}

	out := make([]Ranked, len(eligible))
	for i, c := range eligible {
		nd := dists[i] / maxDist
		su := 1.0
		if c.Limit > 0 {
			su = 1 - float64(c.Free)/float64(c.Limit)
		}
		out[i] = Ranked{
			Candidate: c,
			Score:     w.Distance*nd + w.Space*su,
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TopK returns the first k ranked candidates, or all of them if fewer than k.
func TopK(ranked []Ranked, k int) []Ranked {
	if k >= len(ranked) {
		return ranked
	}
	return ranked[:k]
}
