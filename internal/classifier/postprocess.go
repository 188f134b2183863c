package classifier

import "sort"

// postProcess filters dets to those at or above minConfidence, sorts the
// remainder by confidence descending (stable, so backends that already
// return results in a meaningful order keep ties in that order), and
// truncates to the top topN (spec §4.6). A non-positive topN means no
// truncation.
func postProcess(dets []Detection, minConfidence float64, topN int) []Detection {
	filtered := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= minConfidence {
			filtered = append(filtered, d)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	if topN > 0 && len(filtered) > topN {
		filtered = filtered[:topN]
	}
	return filtered
}
