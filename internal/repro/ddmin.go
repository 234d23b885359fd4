package repro

// Oracle is a predicate over a candidate line sequence: it reports whether
// the reduced script still reproduces the failure. DDMin has no knowledge
// of scripts or validation — it is a pure function over lines and a
// predicate closure (spec.md §9 "Delta debugging as a pure function"), which
// is what lets it be exercised by property-based tests over arbitrary
// predicates, independent of the validator.
type Oracle func(lines []string) bool

// DDMin applies the standard delta-debugging schedule (spec.md §4.9 step 2,
// §9, B5): start with n=2, try removing each of n contiguous chunks; on a
// successful reduction shrink n by one (floor 2) and restart the chunk scan
// over the smaller sequence; on a full pass with no reduction, double n (up
// to len(lines)); stop when no reduction occurred and n has reached
// len(lines).
//
// Zero lines returns an empty slice; a single line is a no-op (B5).
func DDMin(lines []string, oracle Oracle) []string {
	if len(lines) == 0 {
		return []string{}
	}
	if len(lines) < 2 {
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}

	current := make([]string, len(lines))
	copy(current, lines)
	n := 2

	for len(current) >= 2 {
		chunkSize := len(current) / n
		if chunkSize == 0 {
			break
		}

		reduced := false
		for i := 0; i < n; i++ {
			start := i * chunkSize
			end := start + chunkSize
			if i == n-1 {
				end = len(current)
			}
			if start >= len(current) {
				break
			}

			trial := make([]string, 0, len(current)-(end-start))
			trial = append(trial, current[:start]...)
			trial = append(trial, current[end:]...)

			if oracle(trial) {
				current = trial
				if n > 2 {
					n = n - 1
				}
				reduced = true
				break
			}
		}

		if !reduced {
			if n >= len(current) {
				break
			}
			n = n * 2
			if n > len(current) {
				n = len(current)
			}
		}
	}

	return current
}
