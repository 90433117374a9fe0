package moderation

import (
	"sort"
	"time"
)

// UniformTimes spreads n timestamps evenly across duration, skipping the
// very first and last instant where clips are often black.
func UniformTimes(duration time.Duration, n int) []time.Duration {
	if n <= 0 {
		return nil
	}
	if duration <= 0 {
		return []time.Duration{0}
	}
	out := make([]time.Duration, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, duration*time.Duration(i)/time.Duration(n+1))
	}
	return out
}

// SceneTimes prefers scene-change timestamps and fills up to n with
// uniform samples. The result is sorted and free of duplicates.
func SceneTimes(duration time.Duration, n int, scenes []time.Duration) []time.Duration {
	if n <= 0 {
		return nil
	}

	picked := make([]time.Duration, 0, n)
	valid := make([]time.Duration, 0, len(scenes))
	for _, s := range scenes {
		if s > 0 && (duration <= 0 || s < duration) {
			valid = append(valid, s)
		}
	}
	if len(valid) > n {
		step := float64(len(valid)) / float64(n)
		for i := 0; i < n; i++ {
			picked = append(picked, valid[int(float64(i)*step)])
		}
	} else {
		picked = append(picked, valid...)
	}

	seen := make(map[time.Duration]bool, n)
	for _, t := range picked {
		seen[t] = true
	}
	for _, t := range UniformTimes(duration, n) {
		if len(picked) >= n {
			break
		}
		if !seen[t] {
			picked = append(picked, t)
			seen[t] = true
		}
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i] < picked[j] })
	return picked
}
