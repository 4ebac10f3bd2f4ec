package eval

import (
	"strings"
)

const (
	// lengthDeltaThreshold: responses whose lengths differ by more than
	// this fraction of their average length are considered changed
	// without looking at content.
	lengthDeltaThreshold = 0.20

	// overlapThreshold: below this word-set overlap ratio, similar-length
	// responses are considered changed.
	overlapThreshold = 0.80
)

// compareResponses reports whether the replayed response meaningfully
// differs from the original. Exact matches are unchanged; a large
// relative length delta is changed; otherwise a lowercase word-set
// overlap against the larger set decides.
func compareResponses(original, replayed string) bool {
	if original == replayed {
		return false
	}

	lenA := float64(len(original))
	lenB := float64(len(replayed))
	avg := (lenA + lenB) / 2
	if avg == 0 {
		return false
	}
	delta := lenA - lenB
	if delta < 0 {
		delta = -delta
	}
	if delta/avg > lengthDeltaThreshold {
		return true
	}

	return wordOverlapRatio(original, replayed) < overlapThreshold
}

// wordOverlapRatio computes |A∩B| / max(|A|, |B|) over lowercase word
// sets.
func wordOverlapRatio(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}

	overlap := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(larger)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(s)) {
		set[word] = struct{}{}
	}
	return set
}

// compareTools reports whether the replayed tool usage differs from the
// original: any symmetric difference between the name sets, order
// ignored.
func compareTools(original, replayed []string) bool {
	setA := nameSet(original)
	setB := nameSet(replayed)
	if len(setA) != len(setB) {
		return true
	}
	for name := range setA {
		if _, ok := setB[name]; !ok {
			return true
		}
	}
	return false
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
