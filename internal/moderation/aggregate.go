package moderation

// Aggregator folds frame texts into a verdict one frame at a time. It keeps
// the highest rating seen so far and stops at the first illegal-content
// match. The zero value is ready to use; an Aggregator is not safe for
// concurrent use and serves a single video.
type Aggregator struct {
	max      Rating
	reason   string
	rejected bool
	frames   int
}

// Observe feeds one frame's raw classifier text. An empty text stands for
// a frame the classifier returned nothing for. Observe reports true once
// the run is decided and later frames need not be inspected.
func (a *Aggregator) Observe(text string) (done bool) {
	if a.rejected {
		return true
	}
	a.frames++

	if IsIllegal(text) {
		a.rejected = true
		return true
	}

	fv, ok := ParseFrame(text)
	if !ok {
		return false
	}
	if fv.Rating > a.max {
		a.max = fv.Rating
		a.reason = fv.Reason
	}
	return false
}

// Rejected reports whether a frame triggered the illegal-content check.
func (a *Aggregator) Rejected() bool {
	return a.rejected
}

// Verdict returns the outcome so far.
func (a *Aggregator) Verdict() Verdict {
	if a.rejected {
		v := rejected()
		v.FramesInspected = a.frames
		return v
	}
	reason := a.reason
	if a.max == Safe {
		reason = ReasonClean
	}
	return Verdict{
		Rating:          a.max,
		Reason:          reason,
		IsLegal:         true,
		Evaluated:       true,
		FramesInspected: a.frames,
	}
}

// Aggregate runs an Aggregator over frame texts in order.
func Aggregate(texts []string) Verdict {
	var a Aggregator
	for _, text := range texts {
		if a.Observe(text) {
			break
		}
	}
	return a.Verdict()
}
