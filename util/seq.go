package util

// Sequence numbers wrap at 2^32. Comparisons use the signed distance between
// two numbers, so they hold while the numbers are less than 2^31 apart.

func SeqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func SeqLessOrEqual(a, b uint32) bool {
	return a == b || SeqLess(a, b)
}

func SeqGreater(a, b uint32) bool {
	return SeqLess(b, a)
}

// SeqInRange reports whether lo < seq <= hi.
func SeqInRange(seq, lo, hi uint32) bool {
	return SeqLess(lo, seq) && SeqLessOrEqual(seq, hi)
}
