package bucket

import (
	"math"
	"sort"

	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/signature"
)

// Params describes one similarity query against the index.
type Params struct {
	// Sig and DC are the probe's signature and DC triple.
	Sig signature.Signature
	DC  signature.DCTriple

	// K is the maximum number of matches returned. K <= 0 yields an empty
	// result.
	K int

	// Filter, if non-nil, drops candidates for which it returns false.
	Filter func(core.InternID) bool

	// MinScore, if non-nil, drops candidates scoring below it.
	MinScore *float64
}

// Match is one query result, most similar first. Higher scores are more
// similar.
type Match struct {
	ID    core.InternID
	Score float64
}

// Query scores all indexed images against the probe and returns the top K.
//
// Every candidate starts from a DC seed, the negated weighted L1 distance
// between the probe's DC triple and the candidate's. Each bucket shared
// with the probe then adds the weight of its channel and magnitude tier.
// Only the C*N buckets named by the probe are visited, so query cost is
// independent of how many coefficients the database holds in other buckets.
//
// dc reports the DC triple stored for a candidate; ties on score break by
// ascending internal ID.
func (m *Manager) Query(p Params, dc func(core.InternID) signature.DCTriple) []Match {
	n := len(m.sigs)
	if p.K <= 0 || n == 0 {
		return nil
	}

	scores := make([]float64, n)
	for i := range scores {
		cand := dc(core.InternID(i))
		var seed float64
		for c := 0; c < signature.Channels; c++ {
			seed += signature.DCWeight(c) * math.Abs(p.DC[c]-cand[c])
		}
		scores[i] = -seed
	}

	for c := 0; c < signature.Channels; c++ {
		for _, s := range p.Sig[c] {
			sign, pos := split(s)
			b := m.buckets[c][sign][pos]
			if b == nil {
				continue
			}
			w := signature.Weight(c, pos)
			it := b.Iterator()
			for it.HasNext() {
				scores[it.Next()] += w
			}
		}
	}

	candidates := make([]Match, 0, n)
	for i, score := range scores {
		id := core.InternID(i)
		if p.Filter != nil && !p.Filter(id) {
			continue
		}
		if p.MinScore != nil && score < *p.MinScore {
			continue
		}
		candidates = append(candidates, Match{ID: id, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > p.K {
		candidates = candidates[:p.K]
	}
	return candidates
}
