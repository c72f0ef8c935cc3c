package mms

// computeProgress returns floor(consumed*100/total) clamped to [0,100]. ok is
// false when the total is unknown, in which case no percentage exists.
func computeProgress(consumed, total int64) (pct int32, ok bool) {
	if total <= 0 {
		return 0, false
	}

	if consumed <= 0 {
		return 0, true
	}

	if consumed >= total {
		return 100, true
	}

	return int32(consumed * 100 / total), true
}
