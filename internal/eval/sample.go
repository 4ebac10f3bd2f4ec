package eval

import (
	"hash/fnv"
	"io"
	"sort"
	"strconv"
)

// MaxSampleSize caps how many historical interactions one run replays.
const MaxSampleSize = 100

// sampleOrderV1 is the replay ordering key for an interaction id under
// a seed: FNV-1a 64-bit over "<id>:<seed>". Versioned so reproducible
// ordering is a stable contract rather than a hash accident.
func sampleOrderV1(id string, seed int64) uint64 {
	h := fnv.New64a()
	io.WriteString(h, id)
	io.WriteString(h, ":")
	io.WriteString(h, strconv.FormatInt(seed, 10))
	return h.Sum64()
}

// sampleInteractions applies the sample-size cap and, when a seed is
// present, the deterministic replay ordering. Without a seed the store
// order is kept as-is.
func sampleInteractions(interactions []HistoricalInteraction, criteria SelectionCriteria) []HistoricalInteraction {
	if criteria.Seed != nil {
		seed := *criteria.Seed
		sort.SliceStable(interactions, func(i, j int) bool {
			ki := sampleOrderV1(interactions[i].MessageID, seed)
			kj := sampleOrderV1(interactions[j].MessageID, seed)
			if ki != kj {
				return ki < kj
			}
			return interactions[i].MessageID < interactions[j].MessageID
		})
	}

	limit := MaxSampleSize
	if criteria.SampleSize > 0 && criteria.SampleSize < limit {
		limit = criteria.SampleSize
	}
	if len(interactions) > limit {
		interactions = interactions[:limit]
	}
	return interactions
}
